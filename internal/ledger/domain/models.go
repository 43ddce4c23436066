package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	"github.com/maqraa/wallet/pkg/db/pagination"
)

// TransactionKind classifies a balance movement.
type TransactionKind string

const (
	KindDeposit    TransactionKind = "DEPOSIT"
	KindPurchase   TransactionKind = "PURCHASE"
	KindAdjustment TransactionKind = "ADJUSTMENT"
)

// BalanceTransaction is an append-only signed movement of a user's balance.
// The sum of a user's transactions equals the user's current balance.
type BalanceTransaction struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID    `json:"user_id" gorm:"not null;index"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Kind        TransactionKind `json:"kind" gorm:"type:text;not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BalanceTransaction) TableName() string { return "balance_transactions" }

// ApplyResult reports what a declared gateway status did to an intent.
type ApplyResult struct {
	Applied bool
	Status  intentdomain.IntentStatus
	Balance int64
}

var (
	ErrIntentNotFound    = errors.New("intent_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrUserNotFound      = errors.New("user_not_found")
)

// Service is the only path allowed to mutate a user's balance.
type Service interface {
	// Apply performs the idempotent terminal-state transition for an
	// intent given a status declared by the gateway.
	Apply(ctx context.Context, intentID snowflake.ID, declaredStatus string, declaredMethod string) (ApplyResult, error)
	// Purchase debits the balance for an in-platform spend.
	Purchase(ctx context.Context, userID snowflake.ID, amount int64, description string) (*BalanceTransaction, error)
	Balance(ctx context.Context, userID snowflake.ID) (int64, error)
	Transactions(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]*BalanceTransaction, *pagination.PageInfo, error)
}
