// Package watermark persists the boundary between already-processed and
// not-yet-processed sales rows: the latest transaction date whose rows were
// durably committed.
package watermark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store reads and advances the singleton watermark. Advance must only be
// called after the loader reports a committed write.
type Store interface {
	// Read returns the watermark and whether one exists yet.
	Read(ctx context.Context) (time.Time, bool, error)
	// Advance persists a new watermark. Callers guarantee monotonicity.
	Advance(ctx context.Context, t time.Time) error
}

type fileState struct {
	LastProcessedDate    string `json:"lastProcessedDate"`
	UpdatedAtEpochSecond int64  `json:"updatedAt"`
}

const fileLayout = "2006-01-02"

// FileStore keeps the watermark in watermark.latest.json under baseDir.
// Suitable for local runs and tests; production runs use the etl_state
// table next to the destination data.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (f *FileStore) path() string {
	return filepath.Join(f.baseDir, "watermark.latest.json")
}

func (f *FileStore) Read(ctx context.Context) (time.Time, bool, error) {
	data, err := os.ReadFile(f.path())
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return time.Time{}, false, fmt.Errorf("unmarshal watermark: %w", err)
	}
	t, err := time.Parse(fileLayout, st.LastProcessedDate)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %q: %w", st.LastProcessedDate, err)
	}
	return t, true, nil
}

func (f *FileStore) Advance(ctx context.Context, t time.Time) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	st := fileState{
		LastProcessedDate:    t.Format(fileLayout),
		UpdatedAtEpochSecond: time.Now().UTC().Unix(),
	}
	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watermark: %w", err)
	}
	tmp := f.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	if err := os.Rename(tmp, f.path()); err != nil {
		return fmt.Errorf("rename watermark: %w", err)
	}
	return nil
}
