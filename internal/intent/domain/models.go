package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	StatusPending   IntentStatus = "PENDING"
	StatusPaid      IntentStatus = "PAID"
	StatusFailed    IntentStatus = "FAILED"
	StatusCancelled IntentStatus = "CANCELLED"
	StatusRefunded  IntentStatus = "REFUNDED"
)

// IsTerminal reports whether no further transition is expected, except the
// explicit refund-after-paid case.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// NormalizeDeclaredStatus maps the gateway's status vocabulary onto an
// IntentStatus. Unrecognized tokens return false and must never be treated
// as terminal.
func NormalizeDeclaredStatus(declared string) (IntentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "paid", "success":
		return StatusPaid, true
	case "failed", "fail":
		return StatusFailed, true
	case "cancelled", "canceled", "expired":
		return StatusCancelled, true
	case "refunded", "refund":
		return StatusRefunded, true
	default:
		return "", false
	}
}

// PaymentIntent tracks one attempt to add funds, from creation through
// terminal resolution. Amount is in piasters.
type PaymentIntent struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID `json:"user_id" gorm:"not null;index"`
	Amount         int64        `json:"amount" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	Status         IntentStatus `json:"status" gorm:"type:text;not null"`
	PaymentMethod  string       `json:"payment_method" gorm:"type:text"`
	InvoiceKey     *string      `json:"invoice_key" gorm:"type:text"`
	InvoiceURL     string       `json:"invoice_url" gorm:"type:text"`
	OrderReference string       `json:"order_reference" gorm:"type:text;not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentIntent) TableName() string { return "payment_intents" }
