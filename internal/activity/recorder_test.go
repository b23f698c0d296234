package activity_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smartportal/smartportal/internal/activity"
	_ "github.com/smartportal/smartportal/internal/testing/guard"
)

type memorySink struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (s *memorySink) Append(ctx context.Context, entry activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) snapshot() []activity.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.Entry(nil), s.entries...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderFlushesOnClose(t *testing.T) {
	sink := &memorySink{}
	rec := activity.NewRecorder(sink, discardLogger(), 16)

	for i := 0; i < 5; i++ {
		rec.Record(activity.Entry{UserID: int64(i + 1), Kind: activity.KindLoginSuccess})
	}
	rec.Close()

	entries := sink.snapshot()
	if len(entries) != 5 {
		t.Fatalf("flushed entries = %d, want 5", len(entries))
	}
	for i, entry := range entries {
		if entry.UserID != int64(i+1) {
			t.Fatalf("entry %d out of order: %+v", i, entry)
		}
		if entry.At.IsZero() {
			t.Fatalf("entry %d missing timestamp", i)
		}
	}
}

func TestRecorderStampsTimeOnlyWhenUnset(t *testing.T) {
	sink := &memorySink{}
	rec := activity.NewRecorder(sink, discardLogger(), 16)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.Record(activity.Entry{UserID: 1, Kind: activity.KindLogout, At: at})
	rec.Close()

	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if !entries[0].At.Equal(at) {
		t.Fatalf("timestamp rewritten: %s", entries[0].At)
	}
}

func TestRecordAfterCloseDropsEntry(t *testing.T) {
	sink := &memorySink{}
	rec := activity.NewRecorder(sink, discardLogger(), 16)

	rec.Record(activity.Entry{UserID: 1, Kind: activity.KindLoginSuccess})
	rec.Close()
	rec.Record(activity.Entry{UserID: 2, Kind: activity.KindLogout})

	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the pre-close one", len(entries))
	}
	if entries[0].UserID != 1 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestRecordOnNilRecorderIsSafe(t *testing.T) {
	var rec *activity.Recorder
	rec.Record(activity.Entry{UserID: 1, Kind: activity.KindLoginSuccess})
}

func TestMultiSinkFansOut(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	multi := activity.MultiSink{first, second}

	entry := activity.Entry{UserID: 7, Kind: activity.KindProfileUpdate, At: time.Now()}
	if err := multi.Append(context.Background(), entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(first.snapshot()) != 1 || len(second.snapshot()) != 1 {
		t.Fatalf("entry must reach every sink")
	}
}
