package manifest

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"retl/internal/load"
)

func sample() RunManifest {
	return RunManifest{
		RunID:      "run-123",
		Watermark:  "2024-03-15",
		RowsLoaded: load.Counts{Products: 10, Customers: 20, Sales: 30},
		IssueCounts: map[string]int{
			"normalize/negative_price": 2,
		},
	}
}

func TestPublishAndReadLatest(t *testing.T) {
	dir := t.TempDir()
	m := NewFilesystemManifest(dir)
	if err := m.PublishLatest(sample()); err != nil {
		t.Fatalf("PublishLatest error: %v", err)
	}
	got, err := m.ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest error: %v", err)
	}
	if got.RunID != "run-123" || got.Watermark != "2024-03-15" || got.CreatedAtEpochSecond == 0 {
		t.Fatalf("unexpected manifest: %+v", got)
	}
	if got.RowsLoaded.Sales != 30 {
		t.Fatalf("row counts lost: %+v", got.RowsLoaded)
	}
	if got.IssueCounts["normalize/negative_price"] != 2 {
		t.Fatalf("issue counts lost: %+v", got.IssueCounts)
	}
}

// fakeKafkaWriter implements kafkaMessageWriter for tests.
type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaManifest_PublishLatest_Success(t *testing.T) {
	fk := &fakeKafkaWriter{}
	km := NewKafkaManifestWith(fk, "etl-manifest-latest")
	if err := km.PublishLatest(sample()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "etl-manifest-latest" {
		t.Fatalf("bad key: %s", string(fk.msgs[0].Key))
	}
}

func TestKafkaManifest_PublishLatest_Fail(t *testing.T) {
	fk := &fakeKafkaWriter{fail: true}
	km := NewKafkaManifestWith(fk, "etl-manifest-latest")
	if err := km.PublishLatest(sample()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMultiPublisher_StopsOnFirstError(t *testing.T) {
	ok := &fakeKafkaWriter{}
	bad := &fakeKafkaWriter{fail: true}
	multi := MultiPublisher(
		NewKafkaManifestWith(bad, "k"),
		NewKafkaManifestWith(ok, "k"),
	)
	if err := multi.PublishLatest(sample()); err == nil {
		t.Fatalf("expected error")
	}
	if len(ok.msgs) != 0 {
		t.Fatalf("second publisher must not run after a failure")
	}
}
