package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink appends one entry to a durable audit store.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// MultiSink fans an entry out to every sink. All sinks are attempted;
// the first error is returned.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, entry Entry) error {
	var first error
	for _, sink := range m {
		if err := sink.Append(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder queues audit entries off the request hot path. Record never
// blocks and never returns an error to the caller: a full queue or a
// failing sink is reported through the logger, not propagated into the
// authentication operation it accompanies.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	queue   chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewRecorder starts the background drain goroutine. Close must be called
// on shutdown to flush what is still queued.
func NewRecorder(sink Sink, logger *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		sink:    sink,
		logger:  logger,
		queue:   make(chan Entry, buffer),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues an entry, stamping the time when unset. Fire and forget.
// Entries arriving after Close are dropped with a warning.
func (r *Recorder) Record(entry Entry) {
	if r == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	select {
	case <-r.done:
		r.logger.Warn("activity recorder closed, dropping entry",
			slog.String("kind", string(entry.Kind)),
			slog.Int64("user_id", entry.UserID))
		return
	default:
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("activity queue full, dropping entry",
			slog.String("kind", string(entry.Kind)),
			slog.Int64("user_id", entry.UserID))
	}
}

// Close stops accepting entries and flushes the queue.
func (r *Recorder) Close() {
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case entry := <-r.queue:
			r.append(entry)
		case <-r.done:
			for {
				select {
				case entry := <-r.queue:
					r.append(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) append(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Error("activity sink append failed",
			slog.Any("error", err),
			slog.String("kind", string(entry.Kind)))
	}
}
