// Package psp is the outbound HTTP adapter for the payment service
// provider: authorize/payout/refund calls and the settled-events export
// feed the reconciliation engine consumes.
package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client implements ports.PSPClient over the provider's REST API.
// Requests carry the same timestamp+HMAC scheme the provider uses on
// callbacks, plus an idempotency key header so retried calls never
// double-charge.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sigSvc     ports.SignatureService
	log        zerolog.Logger
}

// NewClient creates a PSP client.
func NewClient(baseURL, apiKey string, timeout time.Duration, sigSvc ports.SignatureService, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		sigSvc:     sigSvc,
		log:        log,
	}
}

type moneyRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency,omitempty"`
	Ref       string    `json:"ref,omitempty"`
}

// Authorize reserves funds with the provider for a deposit.
func (c *Client) Authorize(ctx context.Context, amount int64, currency string, accountID uuid.UUID, idemKey string) (*domain.ProviderResult, error) {
	return c.post(ctx, "/v1/authorize", moneyRequest{
		AccountID: accountID, Amount: amount, Currency: currency,
	}, idemKey)
}

// Payout instructs the provider to pay an approved withdrawal.
func (c *Client) Payout(ctx context.Context, amount int64, currency string, accountID uuid.UUID, idemKey string) (*domain.ProviderResult, error) {
	return c.post(ctx, "/v1/payouts", moneyRequest{
		AccountID: accountID, Amount: amount, Currency: currency,
	}, idemKey)
}

// Refund reverses a settled movement identified by the provider's ref.
func (c *Client) Refund(ctx context.Context, providerRef string, amount int64, idemKey string) (*domain.ProviderResult, error) {
	return c.post(ctx, "/v1/refunds", moneyRequest{
		Amount: amount, Ref: providerRef,
	}, idemKey)
}

func (c *Client) post(ctx context.Context, path string, payload moneyRequest, idemKey string) (*domain.ProviderResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal psp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build psp request: %w", err)
	}
	c.setHeaders(req, body, idemKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("psp %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read psp response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("psp %s returned %d: %s", path, resp.StatusCode, respBody)
	}

	var result domain.ProviderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode psp response: %w", err)
	}

	c.log.Debug().
		Str("path", path).
		Str("provider_ref", result.ProviderRef).
		Str("status", result.Status).
		Msg("psp call completed")

	return &result, nil
}

func (c *Client) setHeaders(req *http.Request, body []byte, idemKey string) {
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", c.sigSvc.Sign([]byte(c.apiKey), c.sigSvc.BuildWebhookPayload(ts, body)))
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
}
