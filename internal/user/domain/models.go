package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User owns the prepaid balance. Balance is stored in piasters and is only
// mutated through relative increments issued by the ledger service.
type User struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	FullName    string       `json:"full_name" gorm:"type:text;not null"`
	PhoneNumber string       `json:"phone_number" gorm:"type:text;not null"`
	Balance     int64        `json:"balance" gorm:"not null;default:0"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
