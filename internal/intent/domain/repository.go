package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the persistence surface for payment intents.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentIntent, error)
	FindByInvoiceKey(ctx context.Context, db *gorm.DB, invoiceKey string) (*PaymentIntent, error)
	// FindLatestPending returns the newest PENDING intent for the user and
	// amount; userID of zero matches any user (amount-only last resort).
	FindLatestPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) (*PaymentIntent, error)
	// CancelPending marks PENDING intents of the same user and amount
	// CANCELLED, excluding the given intent id. Returns rows affected.
	CancelPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, excludeID snowflake.ID) (int64, error)
	SetInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, invoiceKey *string, invoiceURL string) error
	// MarkFailedFromPending is used by the creator when the gateway call
	// fails; it never overrides a terminal status.
	MarkFailedFromPending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
