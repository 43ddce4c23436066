package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/maqraa/wallet/internal/intent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents (
			id, user_id, amount, currency, status, payment_method,
			invoice_key, invoice_url, order_reference, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID,
		intent.UserID,
		intent.Amount,
		intent.Currency,
		intent.Status,
		intent.PaymentMethod,
		intent.InvoiceKey,
		intent.InvoiceURL,
		intent.OrderReference,
		intent.CreatedAt,
		intent.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentIntent, error) {
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, amount, currency, status, payment_method,
			invoice_key, invoice_url, order_reference, created_at, updated_at
		 FROM payment_intents
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByInvoiceKey(ctx context.Context, db *gorm.DB, invoiceKey string) (*domain.PaymentIntent, error) {
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, amount, currency, status, payment_method,
			invoice_key, invoice_url, order_reference, created_at, updated_at
		 FROM payment_intents
		 WHERE invoice_key = ?
		 LIMIT 1`,
		invoiceKey,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLatestPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) (*domain.PaymentIntent, error) {
	query := `SELECT id, user_id, amount, currency, status, payment_method,
			invoice_key, invoice_url, order_reference, created_at, updated_at
		 FROM payment_intents
		 WHERE amount = ? AND status = ?`
	args := []any{amount, domain.StatusPending}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CancelPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, excludeID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, updated_at = ?
		 WHERE user_id = ? AND amount = ? AND status = ? AND id <> ?`,
		domain.StatusCancelled,
		time.Now().UTC(),
		userID,
		amount,
		domain.StatusPending,
		excludeID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) SetInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, invoiceKey *string, invoiceURL string) error {
	now := time.Now().UTC()
	if invoiceKey == nil {
		return db.WithContext(ctx).Exec(
			`UPDATE payment_intents SET invoice_url = ?, updated_at = ? WHERE id = ?`,
			invoiceURL, now, id,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE payment_intents SET invoice_key = ?, invoice_url = ?, updated_at = ? WHERE id = ?`,
		*invoiceKey, invoiceURL, now, id,
	).Error
}

func (r *repo) MarkFailedFromPending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		time.Now().UTC(),
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
