package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/maqraa/wallet/internal/config"
	"github.com/maqraa/wallet/internal/intent/domain"
	ledgerdomain "github.com/maqraa/wallet/internal/ledger/domain"
	userdomain "github.com/maqraa/wallet/internal/user/domain"
	"github.com/maqraa/wallet/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg     config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Gateway domain.Gateway
	Ledger  ledgerdomain.Service
}

type Service struct {
	cfg     config.Config
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	gateway domain.Gateway
	ledger  ledgerdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:     p.Cfg,
		db:      p.DB,
		log:     p.Log.Named("intent.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		gateway: p.Gateway,
		ledger:  p.Ledger,
	}
}

// Create opens a PENDING intent, supersedes older pending intents of the
// same user and amount, then asks the gateway for an invoice link. The
// intent row exists before any network call so a gateway failure leaves an
// auditable FAILED record instead of nothing.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	user, err := s.loadUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	now := time.Now().UTC()
	intent := &domain.PaymentIntent{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		Amount:    req.Amount,
		Currency:  s.cfg.Fawaterak.Currency,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	intent.OrderReference = fmt.Sprintf("wallet-%s", intent.ID)

	if err := s.repo.Insert(ctx, s.db, intent); err != nil {
		return nil, err
	}

	superseded, err := s.repo.CancelPending(ctx, s.db, user.ID, req.Amount, intent.ID)
	if err != nil {
		return nil, err
	}
	if superseded > 0 {
		s.log.Info("superseded pending intents",
			zap.String("intent_id", intent.ID.String()),
			zap.Int64("count", superseded),
		)
	}

	firstName, lastName := splitName(user.FullName)
	invoice, err := s.gateway.CreateInvoice(ctx, domain.InvoiceRequest{
		Amount:   req.Amount,
		Currency: intent.Currency,
		Customer: domain.InvoiceCustomer{
			FirstName: firstName,
			LastName:  lastName,
			Phone:     user.PhoneNumber,
			Email:     fmt.Sprintf("user%s@maqraa.app", user.ID),
		},
		ItemName:        "شحن رصيد المحفظة",
		OrderReference:  intent.OrderReference,
		PaymentMethodID: req.PaymentMethodID,
		RedirectURL:     s.cfg.BaseURL + "/payment/result",
		WebhookURL:      s.cfg.BaseURL + "/api/payment/webhook",
		Metadata: map[string]string{
			"paymentId": intent.ID.String(),
			"userId":    user.ID.String(),
		},
	})
	if err != nil {
		s.log.Error("invoice creation failed",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err),
		)
		if _, markErr := s.repo.MarkFailedFromPending(ctx, s.db, intent.ID); markErr != nil {
			s.log.Error("failed to mark intent failed", zap.Error(markErr))
		}
		return nil, domain.ErrInvoiceCreate
	}

	key := strings.TrimSpace(invoice.Key)
	resp := &domain.CreateResponse{
		IntentID:   intent.ID,
		InvoiceKey: key,
		InvoiceURL: invoice.URL,
		Status:     domain.StatusPending,
	}

	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}
	if err := s.repo.SetInvoice(ctx, s.db, intent.ID, keyPtr, invoice.URL); err != nil {
		if keyPtr != nil && db.IsDuplicateKeyErr(err) {
			// The gateway re-issued a key we already track. Keep the URL so
			// the client can still pay; reconciliation finds the older row.
			s.log.Warn("invoice key collision",
				zap.String("intent_id", intent.ID.String()),
				zap.String("invoice_key", key),
			)
			if err := s.repo.SetInvoice(ctx, s.db, intent.ID, nil, invoice.URL); err != nil {
				return nil, err
			}
			resp.InvoiceKey = ""
		} else {
			return nil, err
		}
	}

	return resp, nil
}

// Status answers the owner's view of an intent. A pending intent with an
// invoice key is reconciled against the gateway first, which routes any
// terminal answer through the ledger before responding.
func (s *Service) Status(ctx context.Context, userID snowflake.ID, intentID snowflake.ID) (*domain.StatusResponse, error) {
	intent, err := s.repo.FindByID(ctx, s.db, intentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrNotFound
	}
	if intent.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	return s.resolve(ctx, intent)
}

// CheckByInvoiceKey is Status keyed by the gateway's invoice key.
func (s *Service) CheckByInvoiceKey(ctx context.Context, userID snowflake.ID, invoiceKey string) (*domain.StatusResponse, error) {
	invoiceKey = strings.TrimSpace(invoiceKey)
	if invoiceKey == "" {
		return nil, domain.ErrInvalidInvoiceID
	}
	intent, err := s.repo.FindByInvoiceKey(ctx, s.db, invoiceKey)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrNotFound
	}
	if intent.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	return s.resolve(ctx, intent)
}

func (s *Service) resolve(ctx context.Context, intent *domain.PaymentIntent) (*domain.StatusResponse, error) {
	if intent.Status.IsTerminal() || intent.InvoiceKey == nil {
		return toStatusResponse(intent), nil
	}

	details, err := s.gateway.GetInvoiceDetails(ctx, *intent.InvoiceKey)
	if err != nil {
		// The stored state is still a truthful answer when the gateway is
		// unreachable; the next poll or the webhook will catch up.
		s.log.Warn("invoice lookup failed, answering from local state",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err),
		)
		return toStatusResponse(intent), nil
	}

	result, err := s.ledger.Apply(ctx, intent.ID, details.Status, details.PaymentMethod)
	if err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByID(ctx, s.db, intent.ID)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, domain.ErrNotFound
	}
	refreshed.Status = result.Status
	return toStatusResponse(refreshed), nil
}

func (s *Service) loadUser(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	var user userdomain.User
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, full_name, phone_number, balance, created_at, updated_at
		 FROM users
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func toStatusResponse(intent *domain.PaymentIntent) *domain.StatusResponse {
	return &domain.StatusResponse{
		IntentID:      intent.ID,
		Amount:        intent.Amount,
		Status:        intent.Status,
		PaymentMethod: intent.PaymentMethod,
		CreatedAt:     intent.CreatedAt,
		UpdatedAt:     intent.UpdatedAt,
	}
}

func splitName(full string) (string, string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "Customer", "Customer"
	case 1:
		return fields[0], fields[0]
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
