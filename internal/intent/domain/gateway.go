package domain

import "context"

// InvoiceCustomer is the payer identity sent to the gateway.
type InvoiceCustomer struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

// InvoiceRequest is the outbound invoice-creation payload, already priced
// in piasters; the gateway client converts to decimal pounds on the wire.
type InvoiceRequest struct {
	Amount          int64
	Currency        string
	Customer        InvoiceCustomer
	ItemName        string
	OrderReference  string
	PaymentMethodID string
	RedirectURL     string
	WebhookURL      string
	Metadata        map[string]string
}

// Invoice is the gateway's answer to invoice creation.
type Invoice struct {
	Key string
	ID  int64
	URL string
}

// InvoiceDetails is the gateway's current view of an invoice.
type InvoiceDetails struct {
	Status        string
	PaymentMethod string
	Amount        int64
}

// Gateway is the outbound payment-gateway surface the intent service needs.
type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	GetInvoiceDetails(ctx context.Context, invoiceKey string) (*InvoiceDetails, error)
}
