package diag

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"
)

// Archive persists the diagnostics of completed runs to a local PebbleDB so
// a run's events can be replayed after the process exits. Keys are
// "<runID>#<seq>" with seq zero-padded so iteration order matches event order.
type Archive struct {
	db *pebble.DB
}

// OpenArchive opens (or creates) the archive under dir.
func OpenArchive(dir string) (*Archive, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func archiveKey(runID string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s#%012d", runID, seq))
}

// Append writes all events of a run in one batch. Synced on commit so a
// crash after a reported success cannot lose the run's record.
func (a *Archive) Append(runID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	wb := a.db.NewBatch()
	defer wb.Close()
	for _, ev := range events {
		val, err := json.Marshal(&ev)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", ev.Seq, err)
		}
		if err := wb.Set(archiveKey(runID, ev.Seq), val, nil); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("batch commit: %w", err)
	}
	return nil
}

// Replay returns the archived events of one run in recorded order.
func (a *Archive) Replay(runID string) ([]Event, error) {
	prefix := runID + "#"
	it, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(runID + "$"),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	var events []Event
	for it.First(); it.Valid(); it.Next() {
		if !strings.HasPrefix(string(it.Key()), prefix) {
			break
		}
		var ev Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", it.Key(), err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Runs lists the distinct run IDs present in the archive.
func (a *Archive) Runs() ([]string, error) {
	it, err := a.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	var runs []string
	var last string
	for it.First(); it.Valid(); it.Next() {
		k := string(it.Key())
		i := strings.IndexByte(k, '#')
		if i < 0 {
			continue
		}
		if id := k[:i]; id != last {
			runs = append(runs, id)
			last = id
		}
	}
	return runs, nil
}
