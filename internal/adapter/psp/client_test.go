package psp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "psp-test-api-key"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, testAPIKey, 5*time.Second, service.NewHMACSignatureService(), zerolog.Nop())
}

func TestClient_Authorize(t *testing.T) {
	accountID := uuid.New()
	sigSvc := service.NewHMACSignatureService()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/authorize", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("X-Api-Key"))
		assert.Equal(t, "authorize:key-1", r.Header.Get("Idempotency-Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		require.NoError(t, err)
		expected := sigSvc.Sign([]byte(testAPIKey), sigSvc.BuildWebhookPayload(ts, body))
		assert.Equal(t, expected, r.Header.Get("X-Signature"))

		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, accountID.String(), req["account_id"])
		assert.Equal(t, float64(5000), req["amount"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"authorized","provider_ref":"psp-ref-42"}`))
	})

	result, err := client.Authorize(context.Background(), 5000, "EUR", accountID, "authorize:key-1")
	require.NoError(t, err)
	assert.Equal(t, "authorized", result.Status)
	assert.Equal(t, "psp-ref-42", result.ProviderRef)
}

func TestClient_Payout_ProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"account blocked"}`))
	})

	_, err := client.Payout(context.Background(), 1000, "EUR", uuid.New(), "payout:key-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestClient_Refund(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "psp-ref-42", req["ref"])
		_, _ = w.Write([]byte(`{"status":"refunded","provider_ref":"psp-ref-43"}`))
	})

	result, err := client.Refund(context.Background(), "psp-ref-42", 1000, "refund:key-1")
	require.NoError(t, err)
	assert.Equal(t, "refunded", result.Status)
}

func TestHTTPExportFeed_DrainsPages(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/exports", r.URL.Path)
		assert.Equal(t, "acmepay", r.URL.Query().Get("provider"))

		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"records":[{"provider_event_id":"evt-1","amount":"10.50","currency":"EUR"}],"next_cursor":"p2"}`))
		case "p2":
			_, _ = w.Write([]byte(`{"records":[{"provider_event_id":"evt-2","amount":"3.00","currency":"EUR"}],"next_cursor":""}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	feed := NewHTTPExportFeed(client)
	start := time.Now().Add(-24 * time.Hour)
	records, err := feed.Fetch(context.Background(), "acmepay", start, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, records, 2)
	assert.Equal(t, "evt-1", records[0].ProviderEventID)
	assert.Equal(t, "evt-2", records[1].ProviderEventID)
}

func TestHTTPExportFeed_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	feed := NewHTTPExportFeed(client)
	_, err := feed.Fetch(context.Background(), "acmepay", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestMemoryExportFeed(t *testing.T) {
	feed := NewMemoryExportFeed()
	feed.Add("acmepay", domain.ExportRecord{ProviderEventID: "evt-1", Amount: "1.00", Currency: "EUR"})
	feed.Add("betterpay", domain.ExportRecord{ProviderEventID: "evt-9", Amount: "2.00", Currency: "USD"})

	records, err := feed.Fetch(context.Background(), "acmepay", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "evt-1", records[0].ProviderEventID)
}
