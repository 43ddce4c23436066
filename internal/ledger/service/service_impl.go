package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	ledgerdomain "github.com/maqraa/wallet/internal/ledger/domain"
	"github.com/maqraa/wallet/internal/money"
	"github.com/maqraa/wallet/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

// Apply moves an intent into the terminal state declared by the gateway.
// The transition, the balance change, and the transaction row are written
// inside a single database transaction guarded by a conditional status
// update, so a duplicate webhook or a racing poll credits at most once.
func (s *Service) Apply(ctx context.Context, intentID snowflake.ID, declaredStatus string, declaredMethod string) (ledgerdomain.ApplyResult, error) {
	intent, err := s.loadIntent(ctx, intentID)
	if err != nil {
		return ledgerdomain.ApplyResult{}, err
	}
	if intent == nil {
		return ledgerdomain.ApplyResult{}, ledgerdomain.ErrIntentNotFound
	}

	normalized, ok := intentdomain.NormalizeDeclaredStatus(declaredStatus)

	if intent.Status == intentdomain.StatusPaid && normalized != intentdomain.StatusRefunded {
		return ledgerdomain.ApplyResult{Applied: false, Status: intentdomain.StatusPaid}, nil
	}
	if !ok {
		// Unrecognized tokens are still-pending, never terminal.
		return ledgerdomain.ApplyResult{Applied: false, Status: intent.Status}, nil
	}

	switch normalized {
	case intentdomain.StatusPaid:
		return s.settlePaid(ctx, intent, declaredMethod)
	case intentdomain.StatusFailed:
		return s.transition(ctx, intent, intentdomain.StatusFailed)
	case intentdomain.StatusCancelled:
		return s.transition(ctx, intent, intentdomain.StatusCancelled)
	case intentdomain.StatusRefunded:
		return s.settleRefund(ctx, intent)
	default:
		return ledgerdomain.ApplyResult{Applied: false, Status: intent.Status}, nil
	}
}

func (s *Service) settlePaid(ctx context.Context, intent *intentdomain.PaymentIntent, declaredMethod string) (ledgerdomain.ApplyResult, error) {
	method := strings.TrimSpace(declaredMethod)
	if method == "" {
		method = intent.PaymentMethod
	}

	result := ledgerdomain.ApplyResult{Status: intentdomain.StatusPaid}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.WithContext(ctx).Exec(
			`UPDATE payment_intents
			 SET status = ?, payment_method = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			intentdomain.StatusPaid,
			method,
			now,
			intent.ID,
			intentdomain.StatusPending,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another delivery won the race; report the stored status.
			return s.refreshStatus(ctx, tx, intent.ID, &result)
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE users SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			intent.Amount, now, intent.UserID,
		).Error; err != nil {
			return err
		}

		label := method
		if label == "" {
			label = "Fawaterak"
		}
		if err := s.insertTransaction(ctx, tx, &ledgerdomain.BalanceTransaction{
			ID:          s.genID.Generate(),
			UserID:      intent.UserID,
			Amount:      intent.Amount,
			Kind:        ledgerdomain.KindDeposit,
			Description: fmt.Sprintf("تم إضافة %s جنيه إلى الرصيد عبر %s", money.Pounds(intent.Amount), label),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		result.Applied = true
		return tx.WithContext(ctx).Raw(
			`SELECT balance FROM users WHERE id = ?`, intent.UserID,
		).Scan(&result.Balance).Error
	})
	if err != nil {
		return ledgerdomain.ApplyResult{}, err
	}

	if result.Applied {
		s.log.Info("payment settled",
			zap.String("intent_id", intent.ID.String()),
			zap.String("user_id", intent.UserID.String()),
			zap.Int64("amount", intent.Amount),
		)
	}
	return result, nil
}

func (s *Service) settleRefund(ctx context.Context, intent *intentdomain.PaymentIntent) (ledgerdomain.ApplyResult, error) {
	result := ledgerdomain.ApplyResult{Status: intentdomain.StatusRefunded}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.WithContext(ctx).Exec(
			`UPDATE payment_intents
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			intentdomain.StatusRefunded,
			now,
			intent.ID,
			intentdomain.StatusPaid,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Refund is only honored after a successful payment.
			return s.refreshStatus(ctx, tx, intent.ID, &result)
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE users SET balance = balance - ?, updated_at = ? WHERE id = ?`,
			intent.Amount, now, intent.UserID,
		).Error; err != nil {
			return err
		}

		if err := s.insertTransaction(ctx, tx, &ledgerdomain.BalanceTransaction{
			ID:          s.genID.Generate(),
			UserID:      intent.UserID,
			Amount:      -intent.Amount,
			Kind:        ledgerdomain.KindAdjustment,
			Description: fmt.Sprintf("تم استرداد %s جنيه من الرصيد", money.Pounds(intent.Amount)),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		result.Applied = true
		return tx.WithContext(ctx).Raw(
			`SELECT balance FROM users WHERE id = ?`, intent.UserID,
		).Scan(&result.Balance).Error
	})
	if err != nil {
		return ledgerdomain.ApplyResult{}, err
	}
	return result, nil
}

func (s *Service) transition(ctx context.Context, intent *intentdomain.PaymentIntent, target intentdomain.IntentStatus) (ledgerdomain.ApplyResult, error) {
	result := ledgerdomain.ApplyResult{Status: target}
	res := s.db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		target,
		time.Now().UTC(),
		intent.ID,
		intentdomain.StatusPending,
	)
	if res.Error != nil {
		return ledgerdomain.ApplyResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		if err := s.refreshStatus(ctx, s.db, intent.ID, &result); err != nil {
			return ledgerdomain.ApplyResult{}, err
		}
		return result, nil
	}
	result.Applied = true
	return result, nil
}

// Purchase spends balance inside one transaction; the debit only lands when
// the conditional update finds sufficient funds.
func (s *Service) Purchase(ctx context.Context, userID snowflake.ID, amount int64, description string) (*ledgerdomain.BalanceTransaction, error) {
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = fmt.Sprintf("خصم %s جنيه من الرصيد", money.Pounds(amount))
	}

	var record *ledgerdomain.BalanceTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.WithContext(ctx).Exec(
			`UPDATE users
			 SET balance = balance - ?, updated_at = ?
			 WHERE id = ? AND balance >= ?`,
			amount, now, userID, amount,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.WithContext(ctx).Raw(
				`SELECT COUNT(1) FROM users WHERE id = ?`, userID,
			).Scan(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return ledgerdomain.ErrUserNotFound
			}
			return ledgerdomain.ErrInsufficientFunds
		}

		record = &ledgerdomain.BalanceTransaction{
			ID:          s.genID.Generate(),
			UserID:      userID,
			Amount:      -amount,
			Kind:        ledgerdomain.KindPurchase,
			Description: description,
			CreatedAt:   now,
		}
		return s.insertTransaction(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM users WHERE id = ?`, userID,
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ledgerdomain.ErrUserNotFound
	}

	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT balance FROM users WHERE id = ?`, userID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) Transactions(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]*ledgerdomain.BalanceTransaction, *pagination.PageInfo, error) {
	size := page.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 250 {
		size = 250
	}

	query := `SELECT id, user_id, amount, kind, description, created_at
		 FROM balance_transactions
		 WHERE user_id = ?`
	args := []any{userID}

	if strings.TrimSpace(page.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		if cursor.ID != "" {
			afterID, err := snowflake.ParseString(cursor.ID)
			if err != nil {
				return nil, nil, err
			}
			query += ` AND id < ?`
			args = append(args, afterID)
		}
	}

	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, size+1)

	var items []*ledgerdomain.BalanceTransaction
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(size), func(item *ledgerdomain.BalanceTransaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		return token
	})
	if len(items) > size {
		items = items[:size]
	}
	return items, pageInfo, nil
}

func (s *Service) loadIntent(ctx context.Context, id snowflake.ID) (*intentdomain.PaymentIntent, error) {
	var item intentdomain.PaymentIntent
	err := s.db.WithContext(ctx).Raw(
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

func (s *Service) refreshStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, result *ledgerdomain.ApplyResult) error {
	var status intentdomain.IntentStatus
	if err := tx.WithContext(ctx).Raw(
		`SELECT status FROM payment_intents WHERE id = ?`, id,
	).Scan(&status).Error; err != nil {
		return err
	}
	result.Applied = false
	result.Status = status
	return nil
}

func (s *Service) insertTransaction(ctx context.Context, tx *gorm.DB, record *ledgerdomain.BalanceTransaction) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO balance_transactions (
			id, user_id, amount, kind, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.Amount,
		record.Kind,
		record.Description,
		record.CreatedAt,
	).Error
}
