package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	ledgerdomain "github.com/maqraa/wallet/internal/ledger/domain"
	"github.com/maqraa/wallet/internal/webhook/adapters"
	"github.com/maqraa/wallet/internal/webhook/domain"
	"github.com/maqraa/wallet/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Adapters *adapters.Registry
	Intents  intentdomain.Repository
	Ledger   ledgerdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	adapters *adapters.Registry
	intents  intentdomain.Repository
	ledger   ledgerdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		genID:    p.GenID,
		adapters: p.Adapters,
		intents:  p.Intents,
		ledger:   p.Ledger,
	}
}

// Ingest verifies, dedups, resolves, and applies one webhook delivery.
// Every accepted delivery is stored before it is acted on, so a crash
// between storage and apply is recoverable from the audit trail.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header, statusHint string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrInvalidProvider
	}
	adapter, ok := s.adapters.Lookup(provider)
	if !ok {
		return domain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload, statusHint)
	if err != nil {
		return err
	}

	normalized, ok := intentdomain.NormalizeDeclaredStatus(event.Status)
	if !ok {
		s.log.Info("ignoring webhook with non-terminal status",
			zap.String("provider", provider),
			zap.String("status", event.Status),
		)
		return domain.ErrEventIgnored
	}

	record := s.newEventRecord(event, normalized)
	inserted, err := s.insertEvent(ctx, record)
	if err != nil {
		return err
	}
	if !inserted {
		// A prior delivery stored this event. Only reject it when that
		// delivery actually completed; an event stored but never applied
		// (crash, intent not yet resolvable) must stay retriable.
		stored, err := s.loadEvent(ctx, event.Provider, record.EventKey)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return domain.ErrEventAlreadyProcessed
		}
		record = stored
		s.log.Info("reprocessing stored webhook delivery",
			zap.String("provider", provider),
			zap.String("event_key", record.EventKey),
		)
	}

	intent, err := s.resolveIntent(ctx, event)
	if err != nil {
		return err
	}
	if intent == nil {
		s.log.Warn("webhook matched no intent",
			zap.String("provider", provider),
			zap.String("invoice_key", event.InvoiceKey),
			zap.Int64("amount", event.Amount),
		)
		return domain.ErrIntentNotFound
	}

	if event.Amount > 0 && event.Amount != intent.Amount {
		s.log.Warn("webhook amount differs from intent",
			zap.String("intent_id", intent.ID.String()),
			zap.Int64("intent_amount", intent.Amount),
			zap.Int64("webhook_amount", event.Amount),
		)
	}

	s.backfillInvoiceKey(ctx, intent, event.InvoiceKey)

	result, err := s.ledger.Apply(ctx, intent.ID, event.Status, event.PaymentMethod)
	if err != nil {
		return err
	}
	s.log.Info("webhook applied",
		zap.String("provider", provider),
		zap.String("intent_id", intent.ID.String()),
		zap.String("status", string(result.Status)),
		zap.Bool("applied", result.Applied),
	)

	return s.markProcessed(ctx, record.ID)
}

// newEventRecord builds the stored copy of a delivery. The uniqueness key is
// the invoice key plus normalized status, so the same terminal fact always
// lands on the same row.
func (s *Service) newEventRecord(event *domain.Event, normalized intentdomain.IntentStatus) *domain.EventRecord {
	eventKey := event.InvoiceKey
	if eventKey == "" && event.PaymentID != 0 {
		eventKey = "intent:" + event.PaymentID.String()
	}
	if eventKey == "" {
		// No stable identity in the payload; store it but give up on dedup.
		eventKey = "anon:" + uuid.NewString()
	}
	eventKey = eventKey + ":" + string(normalized)

	return &domain.EventRecord{
		ID:         s.genID.Generate(),
		Provider:   event.Provider,
		EventKey:   eventKey,
		Status:     event.Status,
		Payload:    event.RawPayload,
		ReceivedAt: time.Now().UTC(),
	}
}

// insertEvent reports whether this delivery created the event row.
func (s *Service) insertEvent(ctx context.Context, record *domain.EventRecord) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, event_key, status, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, event_key) DO NOTHING`,
		record.ID,
		record.Provider,
		record.EventKey,
		record.Status,
		record.Payload,
		record.ReceivedAt,
	)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) loadEvent(ctx context.Context, provider, eventKey string) (*domain.EventRecord, error) {
	var record domain.EventRecord
	res := s.db.WithContext(ctx).Raw(
		`SELECT id, provider, event_key, status, payload, received_at, processed_at
		FROM webhook_events
		WHERE provider = ? AND event_key = ?`,
		provider, eventKey,
	).Scan(&record)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

// resolveIntent finds the intent a delivery refers to, strongest signal
// first: invoice key, then the intent id from metadata, then the payer's
// newest pending intent of the same amount, then amount alone.
func (s *Service) resolveIntent(ctx context.Context, event *domain.Event) (*intentdomain.PaymentIntent, error) {
	if event.InvoiceKey != "" {
		intent, err := s.intents.FindByInvoiceKey(ctx, s.db, event.InvoiceKey)
		if err != nil || intent != nil {
			return intent, err
		}
	}

	if event.PaymentID != 0 {
		intent, err := s.intents.FindByID(ctx, s.db, event.PaymentID)
		if err != nil || intent != nil {
			return intent, err
		}
	}

	if event.Amount <= 0 {
		return nil, nil
	}

	if event.UserID != 0 {
		intent, err := s.intents.FindLatestPending(ctx, s.db, event.UserID, event.Amount)
		if err != nil || intent != nil {
			return intent, err
		}
	}

	intent, err := s.intents.FindLatestPending(ctx, s.db, 0, event.Amount)
	if err != nil {
		return nil, err
	}
	if intent != nil {
		s.log.Warn("resolved webhook by amount alone",
			zap.String("intent_id", intent.ID.String()),
			zap.Int64("amount", event.Amount),
		)
	}
	return intent, nil
}

func (s *Service) backfillInvoiceKey(ctx context.Context, intent *intentdomain.PaymentIntent, invoiceKey string) {
	if invoiceKey == "" || intent.InvoiceKey != nil {
		return
	}
	if err := s.intents.SetInvoice(ctx, s.db, intent.ID, &invoiceKey, intent.InvoiceURL); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Warn("invoice key already bound to another intent",
				zap.String("intent_id", intent.ID.String()),
				zap.String("invoice_key", invoiceKey),
			)
			return
		}
		s.log.Error("invoice key backfill failed",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) markProcessed(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	).Error
}
