package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event is the canonical shape every gateway notification is normalized
// into before it touches the ledger. Amount is in piasters; zero means the
// payload did not carry an amount.
type Event struct {
	Provider      string
	InvoiceKey    string
	InvoiceID     int64
	Status        string
	PaymentMethod string
	Amount        int64
	// PaymentID and UserID come from the invoice metadata we attached at
	// creation time; zero when the gateway dropped the metadata.
	PaymentID  snowflake.ID
	UserID     snowflake.ID
	RawPayload []byte
}

// EventRecord is the stored copy of a received webhook, used for dedup and
// audit. The (provider, event_key) pair is unique.
type EventRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider    string         `json:"provider" gorm:"type:text;not null"`
	EventKey    string         `json:"event_key" gorm:"type:text;not null"`
	Status      string         `json:"status" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "webhook_events" }

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrIntentNotFound        = errors.New("intent_not_found")
)

// Adapter turns one gateway's webhook dialect into the canonical Event.
// statusHint carries the status implied by the delivery route when the
// payload itself omits one.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte, statusHint string) (*Event, error)
}

// Service ingests raw webhook deliveries.
type Service interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header, statusHint string) error
}
