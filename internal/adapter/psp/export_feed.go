package psp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
)

// HTTPExportFeed implements ports.ExportFeed over the provider's
// settled-events export endpoint. The endpoint pages with an opaque
// cursor; Fetch drains all pages for the window.
type HTTPExportFeed struct {
	client *Client
}

// NewHTTPExportFeed creates an export feed sharing the PSP client's
// transport and signing.
func NewHTTPExportFeed(client *Client) *HTTPExportFeed {
	return &HTTPExportFeed{client: client}
}

type exportPage struct {
	Records    []domain.ExportRecord `json:"records"`
	NextCursor string                `json:"next_cursor"`
}

// Fetch returns every exported event for [start, end).
func (f *HTTPExportFeed) Fetch(ctx context.Context, provider string, start, end time.Time) ([]domain.ExportRecord, error) {
	var all []domain.ExportRecord
	cursor := ""
	for {
		page, err := f.fetchPage(ctx, provider, start, end, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func (f *HTTPExportFeed) fetchPage(ctx context.Context, provider string, start, end time.Time, cursor string) (*exportPage, error) {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.client.baseURL+"/v1/exports?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}
	f.client.setHeaders(req, nil, "")

	resp, err := f.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch export page: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read export page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export endpoint returned %d: %s", resp.StatusCode, body)
	}

	var page exportPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode export page: %w", err)
	}
	return &page, nil
}

// MemoryExportFeed is an in-memory ports.ExportFeed for tests and local
// development.
type MemoryExportFeed struct {
	mu      sync.RWMutex
	records map[string][]domain.ExportRecord
}

// NewMemoryExportFeed creates an empty feed.
func NewMemoryExportFeed() *MemoryExportFeed {
	return &MemoryExportFeed{records: make(map[string][]domain.ExportRecord)}
}

// Add appends records to a provider's export.
func (f *MemoryExportFeed) Add(provider string, records ...domain.ExportRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[provider] = append(f.records[provider], records...)
}

// Fetch returns all records loaded for the provider. The window is
// ignored; callers load only what the test's window should see.
func (f *MemoryExportFeed) Fetch(_ context.Context, provider string, _, _ time.Time) ([]domain.ExportRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.ExportRecord, len(f.records[provider]))
	copy(out, f.records[provider])
	return out, nil
}
