// Package metadata retrieves product metadata from the paged external
// source. Pages are fetched sequentially to respect the source's rate
// limits; a page that exhausts its retries is skipped so the run can finish
// with partial metadata.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"retl/internal/diag"
	"retl/internal/model"
)

// Fetcher pulls metadata pages from baseURL until a short or empty page.
type Fetcher struct {
	baseURL     string
	client      *http.Client
	pageSize    int
	maxAttempts int
	backoff     time.Duration
	sleep       func(time.Duration)

	// MaxPages bounds a runaway source. Zero means no bound.
	MaxPages int

	// OnPage and OnRetry, when set, are invoked per fetched page and per
	// retry attempt. The pipeline points them at its metric counters.
	OnPage  func()
	OnRetry func()
}

// NewFetcher returns a fetcher with bounded retries. maxAttempts counts the
// first try, so 3 means two retries.
func NewFetcher(baseURL string, pageSize, maxAttempts int) *Fetcher {
	if pageSize <= 0 {
		pageSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Fetcher{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 10 * time.Second},
		pageSize:    pageSize,
		maxAttempts: maxAttempts,
		backoff:     500 * time.Millisecond,
		sleep:       time.Sleep,
	}
}

// rawRecord tolerates identifier fields arriving as numbers or strings.
type rawRecord struct {
	ID                 json.RawMessage `json:"id"`
	ProductID          json.RawMessage `json:"product_id"`
	Description        string          `json:"description"`
	Rating             *float64        `json:"rating"`
	AvailabilityStatus string          `json:"availability_status"`
}

// FetchAll retrieves every page and returns records keyed by canonical
// product ID. The map value for a duplicate ID is the last page's record.
func (f *Fetcher) FetchAll(ctx context.Context, dc *diag.Collector) (map[string]model.Metadata, error) {
	out := make(map[string]model.Metadata)
	var skippedPages []string
	for page := 1; f.MaxPages == 0 || page <= f.MaxPages; page++ {
		recs, err := f.fetchPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Degrade to partial metadata rather than aborting the run.
			// Later pages are abandoned too: a source failing after
			// retries is not worth hammering page by page.
			dc.Record(diag.StageFetch, "page_failed", strconv.Itoa(page), "skipped after retries, pagination stopped")
			skippedPages = append(skippedPages, strconv.Itoa(page))
			break
		}
		if f.OnPage != nil {
			f.OnPage()
		}
		for _, r := range recs {
			m := normalizeRecord(r)
			if m.ProductID == "" {
				dc.Record(diag.StageFetch, "missing_remote_id", "", "record skipped")
				continue
			}
			out[m.ProductID] = m
		}
		if len(recs) < f.pageSize {
			break
		}
	}
	dc.Summary(diag.StageFetch, "page_failed", len(skippedPages), skippedPages)
	return out, nil
}

// fetchPage GETs one page with bounded retries and doubling backoff.
// Network errors and 5xx responses retry; other statuses fail fast.
func (f *Fetcher) fetchPage(ctx context.Context, page int) ([]rawRecord, error) {
	url := fmt.Sprintf("%s?page=%d&limit=%d", f.baseURL, page, f.pageSize)
	var lastErr error
	delay := f.backoff
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			if f.OnRetry != nil {
				f.OnRetry()
			}
			f.sleep(delay)
			delay *= 2
		}
		recs, retryable, err := f.get(ctx, url)
		if err == nil {
			return recs, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("page %d after %d attempts: %w", page, f.maxAttempts, lastErr)
}

func (f *Fetcher) get(ctx context.Context, url string) (recs []rawRecord, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, &recs); err != nil {
		// Some deployments wrap the page in {"products": [...]}.
		var wrapped struct {
			Products []rawRecord `json:"products"`
		}
		if werr := json.Unmarshal(body, &wrapped); werr != nil {
			return nil, false, fmt.Errorf("decode page: %w", err)
		}
		recs = wrapped.Products
	}
	return recs, false, nil
}

// normalizeRecord coerces the remote identifier to a trimmed string and
// fills missing fields with the documented defaults.
func normalizeRecord(r rawRecord) model.Metadata {
	id := coerceID(r.ID)
	if id == "" {
		id = coerceID(r.ProductID)
	}
	m := model.Metadata{
		ProductID:          id,
		Description:        strings.TrimSpace(r.Description),
		Rating:             model.DefaultRating,
		AvailabilityStatus: strings.TrimSpace(r.AvailabilityStatus),
	}
	if m.Description == "" {
		m.Description = model.DefaultDescription
	}
	if r.Rating != nil && *r.Rating >= 0 && *r.Rating <= 5 {
		m.Rating = *r.Rating
	}
	if m.AvailabilityStatus == "" {
		m.AvailabilityStatus = model.AvailabilityUnknown
	}
	return m
}

// coerceID turns a JSON string or number into a trimmed string key.
func coerceID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
