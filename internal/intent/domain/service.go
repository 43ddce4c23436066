package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreateRequest opens a new payment intent for a user.
type CreateRequest struct {
	UserID          snowflake.ID
	Amount          int64
	PaymentMethodID string
}

// CreateResponse carries everything the client needs to pay.
type CreateResponse struct {
	IntentID   snowflake.ID `json:"payment_id"`
	InvoiceKey string       `json:"invoice_key,omitempty"`
	InvoiceURL string       `json:"invoice_url,omitempty"`
	Status     IntentStatus `json:"status"`
}

// StatusResponse is the client view of an intent.
type StatusResponse struct {
	IntentID      snowflake.ID `json:"id"`
	Amount        int64        `json:"amount"`
	Status        IntentStatus `json:"status"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Service covers intent creation and client-initiated status polling.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	// Status resolves the intent for its owner; pending intents are
	// reconciled against the gateway before answering.
	Status(ctx context.Context, userID snowflake.ID, intentID snowflake.ID) (*StatusResponse, error)
	// CheckByInvoiceKey is the invoice-key flavor of Status.
	CheckByInvoiceKey(ctx context.Context, userID snowflake.ID, invoiceKey string) (*StatusResponse, error)
}
