package domain

import "errors"

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrNotFound         = errors.New("intent_not_found")
	ErrNotOwner         = errors.New("intent_not_owner")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrGatewayUnusable  = errors.New("gateway_unusable")
	ErrInvoiceCreate    = errors.New("invoice_create_failed")
	ErrMissingInvoice   = errors.New("intent_missing_invoice_key")
	ErrInvalidInvoiceID = errors.New("invalid_invoice_key")
)
