package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"retl/internal/diag"
	"retl/internal/model"
)

func collector() *diag.Collector {
	return diag.NewCollector(zap.NewNop().Sugar())
}

func testFetcher(url string, pageSize, maxAttempts int) *Fetcher {
	f := NewFetcher(url, pageSize, maxAttempts)
	f.backoff = time.Millisecond
	f.sleep = func(time.Duration) {}
	return f
}

func page(recs ...map[string]any) []byte {
	b, _ := json.Marshal(recs)
	if recs == nil {
		return []byte("[]")
	}
	return b
}

func TestFetchAll_PaginatesUntilShortPage(t *testing.T) {
	pages := map[int][]byte{
		1: page(
			map[string]any{"id": "1", "description": "a", "rating": 4.5, "availability_status": "In Stock"},
			map[string]any{"id": "2", "description": "b", "rating": 3.0, "availability_status": "Out of Stock"},
		),
		2: page(
			map[string]any{"id": "3", "description": "c", "rating": 1.0, "availability_status": "In Stock"},
		),
	}
	var requested []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := strconv.Atoi(r.URL.Query().Get("page"))
		requested = append(requested, p)
		w.Write(pages[p])
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 2, 3)
	got, err := f.FetchAll(context.Background(), collector())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 records, got %d", len(got))
	}
	if len(requested) != 2 || requested[0] != 1 || requested[1] != 2 {
		t.Fatalf("want sequential pages 1,2, got %v", requested)
	}
	if got["2"].AvailabilityStatus != model.AvailabilityOutOfStock {
		t.Fatalf("unexpected record: %+v", got["2"])
	}
}

func TestFetchAll_RetriesTransientThenSucceeds(t *testing.T) {
	var calls, retries int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(page(map[string]any{"id": "1", "description": "a", "rating": 2.0, "availability_status": "In Stock"}))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 50, 3)
	f.OnRetry = func() { retries++ }
	got, err := f.FetchAll(context.Background(), collector())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
	if retries != 2 {
		t.Fatalf("want 2 retries, got %d", retries)
	}
}

func TestFetchAll_SkipsPageAfterExhaustedRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dc := collector()
	f := testFetcher(srv.URL, 50, 3)
	got, err := f.FetchAll(context.Background(), dc)
	if err != nil {
		t.Fatalf("run must continue with partial metadata, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty metadata, got %d", len(got))
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
	if n := dc.CountByKind()["fetch/page_failed"]; n != 1 {
		t.Fatalf("want 1 page_failed event, got %d", n)
	}
}

func TestFetchAll_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 50, 3)
	if _, err := f.FetchAll(context.Background(), collector()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx must not retry, got %d attempts", calls)
	}
}

func TestFetchAll_MissingFieldsGetDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(page(map[string]any{"id": "P100"}))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 50, 3)
	got, err := f.FetchAll(context.Background(), collector())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	m, ok := got["P100"]
	if !ok {
		t.Fatalf("record P100 missing: %+v", got)
	}
	if m.Description != model.DefaultDescription {
		t.Fatalf("want default description, got %q", m.Description)
	}
	if m.Rating != 0.0 {
		t.Fatalf("want rating 0.0, got %v", m.Rating)
	}
	if m.AvailabilityStatus != model.AvailabilityUnknown {
		t.Fatalf("want Unknown availability, got %q", m.AvailabilityStatus)
	}
}

func TestFetchAll_NumericRemoteIDCoercedToString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 42, "description": "d", "rating": 5, "availability_status": "In Stock"}]`))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 50, 3)
	got, err := f.FetchAll(context.Background(), collector())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if _, ok := got["42"]; !ok {
		t.Fatalf("numeric id must join as string key, got %+v", got)
	}
}

func TestFetchAll_WrappedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": [{"id": "7", "description": "d", "rating": 1, "availability_status": "In Stock"}]}`))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 50, 3)
	got, err := f.FetchAll(context.Background(), collector())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if _, ok := got["7"]; !ok {
		t.Fatalf("wrapped payload not parsed: %+v", got)
	}
}

func TestFetchAll_RatingOutOfRangeDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(page(map[string]any{"id": "1", "description": "d", "rating": 9.5, "availability_status": "In Stock"}))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL, 50, 3)
	got, err := f.FetchAll(context.Background(), collector())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got["1"].Rating != 0.0 {
		t.Fatalf("out-of-range rating must default to 0, got %v", got["1"].Rating)
	}
}
