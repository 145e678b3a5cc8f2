package diag

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage identifies where in the run an event was recorded.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
	StageDedupe    Stage = "dedupe"
	StageFetch     Stage = "fetch"
	StageEnrich    Stage = "enrich"
	StageLoad      Stage = "load"
	StageWatermark Stage = "watermark"
)

// Event is one recorded quality issue and the corrective action taken.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Stage     Stage     `json:"stage"`
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	Action    string    `json:"action"`
}

// Collector gathers quality events for one run. It replaces any global log
// handle: stages receive it explicitly and the pipeline merges the result
// into the run report. Safe for use from a single run goroutine; the mutex
// only guards against accidental sharing in tests.
type Collector struct {
	mu     sync.Mutex
	log    *zap.SugaredLogger
	events []Event
	seq    int64
}

// NewCollector returns a collector writing each event to log at debug level.
func NewCollector(log *zap.SugaredLogger) *Collector {
	return &Collector{log: log}
}

// Record appends one event.
func (c *Collector) Record(stage Stage, kind, key, action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	ev := Event{
		Seq:       c.seq,
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Kind:      kind,
		Key:       key,
		Action:    action,
	}
	c.events = append(c.events, ev)
	c.log.Debugw("data quality event",
		"stage", stage, "kind", kind, "key", key, "action", action)
}

// Summary logs an aggregate line for a stage step: how many rows were
// affected and a bounded sample of the affected keys.
func (c *Collector) Summary(stage Stage, kind string, affected int, sampleKeys []string) {
	if affected == 0 {
		return
	}
	if len(sampleKeys) > 5 {
		sampleKeys = sampleKeys[:5]
	}
	c.log.Infow("stage summary",
		"stage", stage, "kind", kind, "rows_affected", affected, "sample_keys", sampleKeys)
}

// Events returns a copy of all recorded events in order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// CountByKind returns event counts keyed by "stage/kind".
func (c *Collector) CountByKind() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, ev := range c.events {
		counts[string(ev.Stage)+"/"+ev.Kind]++
	}
	return counts
}
