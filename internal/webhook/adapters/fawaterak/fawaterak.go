package fawaterak

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/maqraa/wallet/internal/money"
	"github.com/maqraa/wallet/internal/webhook/domain"
)

// Adapter normalizes Fawaterak webhook deliveries. Fawaterak signs the
// payload with an HMAC over a fixed field template keyed by the vendor
// key, and is loose about field names across its webhook variants, so
// parsing accepts every alias the gateway has been seen to emit.
type Adapter struct {
	vendorKey string
}

func NewAdapter(vendorKey string) *Adapter {
	return &Adapter{vendorKey: strings.TrimSpace(vendorKey)}
}

func (a *Adapter) Provider() string {
	return "fawaterak"
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.vendorKey == "" {
		return domain.ErrInvalidSignature
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.ErrInvalidPayload
	}

	received := readString(fields, "hashKey", "hash_key", "hash")
	if received == "" {
		return domain.ErrInvalidSignature
	}

	invoiceID := readString(fields, "invoice_id", "invoiceId", "id")
	invoiceKey := readString(fields, "invoice_key", "invoiceKey", "key")
	method := readString(fields, "payment_method", "paymentMethod", "method")

	signed := fmt.Sprintf("InvoiceId=%s&InvoiceKey=%s&PaymentMethod=%s", invoiceID, invoiceKey, method)
	mac := hmac.New(sha256.New, []byte(a.vendorKey))
	_, _ = mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, statusHint string) (*domain.Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	event := &domain.Event{
		Provider:      a.Provider(),
		InvoiceKey:    readString(fields, "invoice_key", "invoiceKey", "key"),
		Status:        readString(fields, "invoice_status", "status"),
		PaymentMethod: readString(fields, "payment_method", "paymentMethod", "method"),
		RawPayload:    payload,
	}
	if event.Status == "" {
		event.Status = strings.TrimSpace(statusHint)
	}
	if event.Status == "" {
		return nil, domain.ErrInvalidEvent
	}

	if raw := readString(fields, "invoice_id", "invoiceId", "id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			event.InvoiceID = id
		}
	}

	for _, key := range []string{"invoice_total", "total", "amount", "cartTotal", "cart_total"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		amount, err := money.Parse(value)
		if err != nil || amount <= 0 {
			continue
		}
		event.Amount = amount
		break
	}

	meta := readMetadata(fields)
	if raw := readString(meta, "paymentId", "payment_id"); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil {
			event.PaymentID = id
		}
	}
	if raw := readString(meta, "userId", "user_id"); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil {
			event.UserID = id
		}
	}

	if event.InvoiceKey == "" && event.PaymentID == 0 && event.Amount == 0 {
		return nil, domain.ErrInvalidEvent
	}
	return event, nil
}

func readMetadata(fields map[string]any) map[string]any {
	for _, key := range []string{"metaData", "metadata", "meta", "payload"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			return cast
		case string:
			var parsed map[string]any
			if err := json.Unmarshal([]byte(cast), &parsed); err == nil {
				return parsed
			}
		}
	}
	return nil
}

func readString(fields map[string]any, keys ...string) string {
	if fields == nil {
		return ""
	}
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(cast); trimmed != "" {
				return trimmed
			}
		case json.Number:
			return cast.String()
		case float64:
			if cast == float64(int64(cast)) {
				return strconv.FormatInt(int64(cast), 10)
			}
			return strconv.FormatFloat(cast, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(cast, 10)
		case int:
			return strconv.Itoa(cast)
		}
	}
	return ""
}
