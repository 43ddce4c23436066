package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	intentrepo "github.com/maqraa/wallet/internal/intent/repository"
	ledgerservice "github.com/maqraa/wallet/internal/ledger/service"
	"github.com/maqraa/wallet/internal/webhook"
	"github.com/maqraa/wallet/internal/webhook/adapters"
	"github.com/maqraa/wallet/internal/webhook/adapters/fawaterak"
	webhookdomain "github.com/maqraa/wallet/internal/webhook/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const vendorKey = "vendor_secret"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			full_name TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payment_intents (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_method TEXT,
			invoice_key TEXT,
			invoice_url TEXT,
			order_reference TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payment_intents_invoice_key ON payment_intents(invoice_key) WHERE invoice_key IS NOT NULL`,
		`CREATE TABLE balance_transactions (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			kind TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			event_key TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_webhook_events_provider_event_key ON webhook_events(provider, event_key)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (webhookdomain.Service, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	svc := webhook.NewService(webhook.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Adapters: adapters.NewRegistry(fawaterak.NewAdapter(vendorKey)),
		Intents:  intentrepo.Provide(),
		Ledger:   ledgerSvc,
	})
	return svc, node
}

func seedUser(t *testing.T, db *gorm.DB, id snowflake.ID) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO users (id, full_name, phone_number, balance, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		id, "Sara Ali", fmt.Sprintf("+2012%d", id), now, now,
	).Error
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedIntent(t *testing.T, db *gorm.DB, id, userID snowflake.ID, amount int64, invoiceKey string) {
	t.Helper()
	now := time.Now().UTC()
	var key any
	if invoiceKey != "" {
		key = invoiceKey
	}
	err := db.Exec(
		`INSERT INTO payment_intents (
			id, user_id, amount, currency, status, payment_method,
			invoice_key, invoice_url, order_reference, created_at, updated_at
		) VALUES (?, ?, ?, 'EGP', 'PENDING', '', ?, '', ?, ?, ?)`,
		id, userID, amount, key, fmt.Sprintf("wallet-%s", id), now, now,
	).Error
	if err != nil {
		t.Fatalf("seed intent: %v", err)
	}
}

func signPayload(invoiceID, invoiceKey, method string) string {
	signed := fmt.Sprintf("InvoiceId=%s&InvoiceKey=%s&PaymentMethod=%s", invoiceID, invoiceKey, method)
	mac := hmac.New(sha256.New, []byte(vendorKey))
	_, _ = mac.Write([]byte(signed))
	return hex.EncodeToString(mac.Sum(nil))
}

func userBalance(t *testing.T, db *gorm.DB, id snowflake.ID) int64 {
	t.Helper()
	var balance int64
	if err := db.Raw(`SELECT balance FROM users WHERE id = ?`, id).Scan(&balance).Error; err != nil {
		t.Fatalf("scan balance: %v", err)
	}
	return balance
}

func TestIngestPaidWebhookCreditsOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newTestService(t, db)

	userID := node.Generate()
	intentID := node.Generate()
	seedUser(t, db, userID)
	seedIntent(t, db, intentID, userID, 10000, "inv_hook")

	payload := []byte(fmt.Sprintf(
		`{"invoice_id":77,"invoice_key":"inv_hook","invoice_status":"paid","payment_method":"VISA","invoice_total":"100.00","hashKey":"%s"}`,
		signPayload("77", "inv_hook", "VISA"),
	))

	if err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, ""); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if balance := userBalance(t, db, userID); balance != 10000 {
		t.Fatalf("expected balance 10000, got %d", balance)
	}
	var status string
	if err := db.Raw(`SELECT status FROM payment_intents WHERE id = ?`, intentID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(intentdomain.StatusPaid) {
		t.Fatalf("expected PAID, got %s", status)
	}

	var processedAt string
	if err := db.Raw(`SELECT processed_at FROM webhook_events LIMIT 1`).Scan(&processedAt).Error; err != nil {
		t.Fatalf("scan processed_at: %v", err)
	}
	if processedAt == "" {
		t.Fatalf("expected processed_at to be set")
	}

	// Redelivery of the same terminal fact is rejected at the store.
	err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 10000 {
		t.Fatalf("expected balance unchanged, got %d", balance)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newTestService(t, db)

	userID := node.Generate()
	intentID := node.Generate()
	seedUser(t, db, userID)
	seedIntent(t, db, intentID, userID, 10000, "inv_sig")

	payload := []byte(`{"invoice_id":1,"invoice_key":"inv_sig","invoice_status":"paid","payment_method":"VISA","hashKey":"deadbeef"}`)
	err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 0 {
		t.Fatalf("expected balance untouched, got %d", balance)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no stored event for rejected delivery, got %d", count)
	}
}

func TestIngestResolvesByMetadataAndBackfillsKey(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newTestService(t, db)

	userID := node.Generate()
	intentID := node.Generate()
	seedUser(t, db, userID)
	seedIntent(t, db, intentID, userID, 5000, "")

	payload := []byte(fmt.Sprintf(
		`{"invoiceKey":"inv_meta","status":"paid","paymentMethod":"wallet","amount":50,"metaData":{"paymentId":"%s","userId":"%s"},"hashKey":"%s"}`,
		intentID, userID, signPayload("", "inv_meta", "wallet"),
	))

	if err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, ""); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var stored struct {
		InvoiceKey *string
		Status     string
	}
	if err := db.Raw(`SELECT invoice_key, status FROM payment_intents WHERE id = ?`, intentID).Scan(&stored).Error; err != nil {
		t.Fatalf("scan intent: %v", err)
	}
	if stored.Status != string(intentdomain.StatusPaid) {
		t.Fatalf("expected PAID, got %s", stored.Status)
	}
	if stored.InvoiceKey == nil || *stored.InvoiceKey != "inv_meta" {
		t.Fatalf("expected invoice key backfilled, got %v", stored.InvoiceKey)
	}
	if balance := userBalance(t, db, userID); balance != 5000 {
		t.Fatalf("expected balance 5000, got %d", balance)
	}
}

func TestIngestResolvesByAmountLastResort(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newTestService(t, db)

	userID := node.Generate()
	intentID := node.Generate()
	seedUser(t, db, userID)
	seedIntent(t, db, intentID, userID, 2500, "")

	payload := []byte(fmt.Sprintf(
		`{"invoice_key":"inv_amt","invoice_status":"paid","payment_method":"card","invoice_total":"25.00","hashKey":"%s"}`,
		signPayload("", "inv_amt", "card"),
	))

	if err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, ""); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 2500 {
		t.Fatalf("expected balance 2500, got %d", balance)
	}
}

func TestIngestIgnoresUnknownStatus(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newTestService(t, db)

	userID := node.Generate()
	intentID := node.Generate()
	seedUser(t, db, userID)
	seedIntent(t, db, intentID, userID, 2500, "inv_pending")

	payload := []byte(fmt.Sprintf(
		`{"invoice_key":"inv_pending","invoice_status":"processing","hashKey":"%s"}`,
		signPayload("", "inv_pending", ""),
	))

	err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 0 {
		t.Fatalf("expected balance untouched, got %d", balance)
	}
}

func TestIngestUnmatchedIntent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	payload := []byte(fmt.Sprintf(
		`{"invoice_key":"inv_lost","invoice_status":"paid","invoice_total":"99.00","hashKey":"%s"}`,
		signPayload("", "inv_lost", ""),
	))

	err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestIngestRetryAfterUnresolvedIntent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newTestService(t, db)

	userID := node.Generate()
	intentID := node.Generate()
	seedUser(t, db, userID)

	payload := []byte(fmt.Sprintf(
		`{"invoice_id":88,"invoice_key":"inv_retry","invoice_status":"paid","payment_method":"VISA","invoice_total":"100.00","hashKey":"%s"}`,
		signPayload("88", "inv_retry", "VISA"),
	))

	// First delivery arrives before the intent exists and cannot be applied.
	err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 0 {
		t.Fatalf("expected balance untouched, got %d", balance)
	}

	// The gateway retries once the intent is in place; the stored event has
	// no processed_at yet so the redelivery must go through.
	seedIntent(t, db, intentID, userID, 10000, "inv_retry")
	if err := svc.Ingest(ctx, "fawaterak", payload, http.Header{}, ""); err != nil {
		t.Fatalf("retry ingest: %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 10000 {
		t.Fatalf("expected balance 10000 after retry, got %d", balance)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single stored event, got %d", count)
	}

	// Once applied, further redeliveries are rejected.
	err = svc.Ingest(ctx, "fawaterak", payload, http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}
	if balance := userBalance(t, db, userID); balance != 10000 {
		t.Fatalf("expected balance unchanged, got %d", balance)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	err := svc.Ingest(ctx, "stripe", []byte(`{}`), http.Header{}, "")
	if !errors.Is(err, webhookdomain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}
