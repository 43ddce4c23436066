package fawaterak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maqraa/wallet/internal/config"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	"github.com/maqraa/wallet/internal/money"
	"go.uber.org/zap"
)

var (
	ErrMissingCredentials = errors.New("fawaterak_missing_credentials")
	ErrRequestFailed      = errors.New("fawaterak_request_failed")
	ErrInvalidResponse    = errors.New("fawaterak_response_invalid")
)

// PaymentMethod is one gateway checkout option.
type PaymentMethod struct {
	PaymentID int64  `json:"paymentId"`
	NameEn    string `json:"name_en"`
	NameAr    string `json:"name_ar"`
	Logo      string `json:"logo"`
}

// Client talks to the Fawaterak v2 REST API.
type Client struct {
	baseURL     string
	apiKey      string
	providerKey string
	log         *zap.Logger
	client      *http.Client
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.Fawaterak.APIURL, "/"),
		apiKey:      cfg.Fawaterak.APIKey,
		providerKey: cfg.Fawaterak.ProviderKey,
		log:         log.Named("fawaterak.client"),
		client:      &http.Client{Timeout: 12 * time.Second},
	}
}

type invoiceCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type invoiceCartItem struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type redirectionURLs struct {
	SuccessURL string `json:"successUrl"`
	FailURL    string `json:"failUrl"`
	PendingURL string `json:"pendingUrl"`
}

type createInvoiceRequest struct {
	PaymentMethodID int64             `json:"payment_method_id,omitempty"`
	CartTotal       string            `json:"cartTotal"`
	Currency        string            `json:"currency"`
	Customer        invoiceCustomer   `json:"customer"`
	RedirectionURLs redirectionURLs   `json:"redirectionUrls"`
	CartItems       []invoiceCartItem `json:"cartItems"`
	SendEmail       bool              `json:"sendEmail"`
	WebhookURL      string            `json:"webhookUrl,omitempty"`
	MetaData        map[string]string `json:"metaData,omitempty"`
}

type createInvoiceResponse struct {
	Status string `json:"status"`
	Data   struct {
		URL        string `json:"url"`
		PaymentURL string `json:"payment_data,omitempty"`
		InvoiceKey string `json:"invoiceKey"`
		InvoiceID  int64  `json:"invoiceId"`
	} `json:"data"`
	Message json.RawMessage `json:"message"`
}

type invoiceDetailsResponse struct {
	Status string `json:"status"`
	Data   struct {
		InvoiceStatus string          `json:"invoice_status"`
		PaymentMethod string          `json:"payment_method"`
		Total         json.RawMessage `json:"total"`
	} `json:"data"`
}

type paymentMethodsResponse struct {
	Status string          `json:"status"`
	Data   []PaymentMethod `json:"data"`
}

// CreateInvoice asks the gateway for a hosted payment link. The primary
// endpoint rejects some method-specific requests with a 400; those retry
// once against the legacy endpoint before giving up.
func (c *Client) CreateInvoice(ctx context.Context, req intentdomain.InvoiceRequest) (*intentdomain.Invoice, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	body := createInvoiceRequest{
		CartTotal: money.Format(req.Amount),
		Currency:  req.Currency,
		Customer: invoiceCustomer{
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
		RedirectionURLs: redirectionURLs{
			SuccessURL: req.RedirectURL,
			FailURL:    req.RedirectURL,
			PendingURL: req.RedirectURL,
		},
		CartItems: []invoiceCartItem{{
			Name:     req.ItemName,
			Price:    money.Format(req.Amount),
			Quantity: "1",
		}},
		WebhookURL: req.WebhookURL,
		MetaData:   req.Metadata,
	}
	if id := strings.TrimSpace(req.PaymentMethodID); id != "" {
		if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
			body.PaymentMethodID = parsed
		}
	}

	invoice, status, err := c.postInvoice(ctx, "/createInvoiceLink", body)
	if err == nil {
		return invoice, nil
	}
	if status == http.StatusBadRequest {
		c.log.Warn("createInvoiceLink rejected, retrying legacy endpoint", zap.Error(err))
		invoice, _, err = c.postInvoice(ctx, "/createInvoice", body)
		if err == nil {
			return invoice, nil
		}
	}
	return nil, err
}

func (c *Client) postInvoice(ctx context.Context, path string, body createInvoiceRequest) (*intentdomain.Invoice, int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var parsed createInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.StatusCode, ErrInvalidResponse
	}
	if resp.StatusCode >= http.StatusBadRequest || !strings.EqualFold(parsed.Status, "success") {
		c.log.Warn("invoice creation rejected",
			zap.Int("http_status", resp.StatusCode),
			zap.String("status", parsed.Status),
		)
		return nil, resp.StatusCode, ErrRequestFailed
	}
	if parsed.Data.URL == "" {
		return nil, resp.StatusCode, ErrInvalidResponse
	}

	return &intentdomain.Invoice{
		Key: parsed.Data.InvoiceKey,
		ID:  parsed.Data.InvoiceID,
		URL: parsed.Data.URL,
	}, resp.StatusCode, nil
}

// GetInvoiceDetails fetches the gateway's current view of an invoice.
func (c *Client) GetInvoiceDetails(ctx context.Context, invoiceKey string) (*intentdomain.InvoiceDetails, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}
	invoiceKey = strings.TrimSpace(invoiceKey)
	if invoiceKey == "" {
		return nil, ErrInvalidResponse
	}

	endpoint := c.baseURL + "/getInvoiceDetails?invoice_key=" + url.QueryEscape(invoiceKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, ErrRequestFailed
	}

	var parsed invoiceDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ErrInvalidResponse
	}
	if !strings.EqualFold(parsed.Status, "success") || parsed.Data.InvoiceStatus == "" {
		return nil, ErrInvalidResponse
	}

	details := &intentdomain.InvoiceDetails{
		Status:        parsed.Data.InvoiceStatus,
		PaymentMethod: parsed.Data.PaymentMethod,
	}
	if len(parsed.Data.Total) > 0 {
		var raw any
		if err := json.Unmarshal(parsed.Data.Total, &raw); err == nil {
			if amount, err := money.Parse(raw); err == nil {
				details.Amount = amount
			}
		}
	}
	return details, nil
}

// ListPaymentMethods fetches the checkout options the merchant account
// currently offers.
func (c *Client) ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/getPaymentmethods", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, ErrRequestFailed
	}

	var parsed paymentMethodsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ErrInvalidResponse
	}
	if !strings.EqualFold(parsed.Status, "success") {
		return nil, ErrInvalidResponse
	}
	return parsed.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.providerKey != "" {
		req.Header.Set("X-Provider-Key", c.providerKey)
	}
}
