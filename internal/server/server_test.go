package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/maqraa/wallet/internal/config"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	ledgerdomain "github.com/maqraa/wallet/internal/ledger/domain"
	obsmetrics "github.com/maqraa/wallet/internal/observability/metrics"
	"github.com/maqraa/wallet/internal/server"
	webhookdomain "github.com/maqraa/wallet/internal/webhook/domain"
	"github.com/maqraa/wallet/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIntentService struct {
	createResp *intentdomain.CreateResponse
	createErr  error
	statusResp *intentdomain.StatusResponse
	statusErr  error
}

func (s *stubIntentService) Create(ctx context.Context, req intentdomain.CreateRequest) (*intentdomain.CreateResponse, error) {
	return s.createResp, s.createErr
}

func (s *stubIntentService) Status(ctx context.Context, userID snowflake.ID, intentID snowflake.ID) (*intentdomain.StatusResponse, error) {
	return s.statusResp, s.statusErr
}

func (s *stubIntentService) CheckByInvoiceKey(ctx context.Context, userID snowflake.ID, invoiceKey string) (*intentdomain.StatusResponse, error) {
	return s.statusResp, s.statusErr
}

type stubLedgerService struct {
	balance     int64
	balanceErr  error
	purchaseErr error
}

func (s *stubLedgerService) Apply(ctx context.Context, intentID snowflake.ID, declaredStatus string, declaredMethod string) (ledgerdomain.ApplyResult, error) {
	return ledgerdomain.ApplyResult{}, nil
}

func (s *stubLedgerService) Purchase(ctx context.Context, userID snowflake.ID, amount int64, description string) (*ledgerdomain.BalanceTransaction, error) {
	if s.purchaseErr != nil {
		return nil, s.purchaseErr
	}
	return &ledgerdomain.BalanceTransaction{UserID: userID, Amount: -amount, Kind: ledgerdomain.KindPurchase}, nil
}

func (s *stubLedgerService) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	return s.balance, s.balanceErr
}

func (s *stubLedgerService) Transactions(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]*ledgerdomain.BalanceTransaction, *pagination.PageInfo, error) {
	return nil, &pagination.PageInfo{}, nil
}

type stubWebhookService struct {
	err error
}

func (s *stubWebhookService) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header, statusHint string) error {
	return s.err
}

func newTestServer(t *testing.T, intentSvc intentdomain.Service, ledgerSvc ledgerdomain.Service, webhookSvc webhookdomain.Service) http.Handler {
	t.Helper()

	metrics, err := obsmetrics.New()
	require.NoError(t, err)

	cfg := config.Config{Environment: "test"}
	engine := server.NewEngine(cfg, metrics)
	server.NewServer(server.ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		IntentSvc:  intentSvc,
		LedgerSvc:  ledgerSvc,
		WebhookSvc: webhookSvc,
		Metrics:    metrics,
	})
	return engine
}

func TestRequireUser(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{balance: 12345}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("X-User-ID", "123")
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(12345), body["balance"])
	assert.Equal(t, "123.45", body["balance_formatted"])
}

func TestCreatePaymentValidation(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payment/create", strings.NewReader(`{"amount":"-5"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "123")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errPayload, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation_error", errPayload["type"])
}

func TestPaymentStatusNotFound(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{statusErr: intentdomain.ErrNotFound}, &stubLedgerService{}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payment/status/456", nil)
	req.Header.Set("X-User-ID", "123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentStatusNotOwner(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{statusErr: intentdomain.ErrNotOwner}, &stubLedgerService{}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payment/status/456", nil)
	req.Header.Set("X-User-ID", "123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookResponses(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"accepted", nil, http.StatusOK, "ok"},
		{"duplicate", webhookdomain.ErrEventAlreadyProcessed, http.StatusOK, "ok"},
		{"ignored", webhookdomain.ErrEventIgnored, http.StatusOK, "ignored"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{}, &stubWebhookService{err: tc.err})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantBody, body["status"])
		})
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{}, &stubWebhookService{err: webhookdomain.ErrInvalidSignature})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(`{}`))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{purchaseErr: ledgerdomain.ErrInsufficientFunds}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/balance/purchase", strings.NewReader(`{"amount":"50.00"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, &stubIntentService{}, &stubLedgerService{}, &stubWebhookService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
