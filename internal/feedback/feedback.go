package feedback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 256

	// maxRecent bounds the in-memory copy when a Persister holds the full
	// history.
	maxRecent = 1000
)

// Record is one helpfulness judgement on an emitted suggestion. Response ids
// are not validated and duplicates simply accumulate.
type Record struct {
	SessionID  string    `json:"session_id"`
	ResponseID string    `json:"response_id"`
	Helpful    bool      `json:"is_helpful"`
	Timestamp  time.Time `json:"timestamp"`
}

// Persister durably stores feedback records.
type Persister interface {
	SaveFeedback(ctx context.Context, rec Record) error
}

// Reader exposes stored feedback for reporting.
type Reader interface {
	ListFeedback(ctx context.Context, limit int) ([]Record, error)
	FeedbackSummary(ctx context.Context) (Summary, error)
}

// Summary aggregates recorded feedback.
type Summary struct {
	Total      int `json:"total"`
	Helpful    int `json:"helpful"`
	NotHelpful int `json:"not_helpful"`
}

// Recorder is the append-only feedback sink. Record never blocks on storage:
// records are kept in memory and, when a Persister is configured, queued for
// the writer loop started with Run. With a Persister only the most recent
// records stay in memory; the summary still counts every record.
type Recorder struct {
	mu      sync.RWMutex
	records []Record
	summary Summary

	persister Persister
	queue     chan Record
	dropped   atomic.Int64
	logger    *slog.Logger
}

// NewRecorder creates a Recorder. p may be nil for memory-only operation.
// If queueSize is <= 0, it defaults to 256.
func NewRecorder(p Persister, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		persister: p,
		logger:    slog.Default(),
	}
	if p != nil {
		r.queue = make(chan Record, queueSize)
	}
	return r
}

// Record appends rec. It returns immediately regardless of persistence
// outcome; a full write queue drops the durable copy and logs it.
func (r *Recorder) Record(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	if r.persister != nil && len(r.records) > maxRecent {
		n := copy(r.records, r.records[len(r.records)-maxRecent:])
		clear(r.records[n:])
		r.records = r.records[:n]
	}
	r.summary.Total++
	if rec.Helpful {
		r.summary.Helpful++
	} else {
		r.summary.NotHelpful++
	}
	r.mu.Unlock()

	r.logger.Info("feedback received",
		"session_id", rec.SessionID,
		"response_id", rec.ResponseID,
		"helpful", rec.Helpful,
	)

	if r.queue == nil {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("feedback write queue full, record not persisted",
			"session_id", rec.SessionID, "response_id", rec.ResponseID)
	}
}

// Run drains the write queue into the Persister until ctx is cancelled, then
// flushes whatever is still buffered. Without a Persister it returns at once.
func (r *Recorder) Run(ctx context.Context) error {
	if r.queue == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case rec := <-r.queue:
			r.persist(ctx, rec)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case rec := <-r.queue:
			r.persist(context.Background(), rec)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, rec Record) {
	if err := r.persister.SaveFeedback(ctx, rec); err != nil {
		r.logger.Error("persisting feedback failed",
			"session_id", rec.SessionID, "response_id", rec.ResponseID, "error", err)
	}
}

// Recent returns up to limit records, most recent last. limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.records
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]Record, len(src))
	copy(out, src)
	return out
}

// Summary counts all records seen by this process.
func (r *Recorder) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}

// ListFeedback implements Reader over the in-memory records.
func (r *Recorder) ListFeedback(_ context.Context, limit int) ([]Record, error) {
	return r.Recent(limit), nil
}

// FeedbackSummary implements Reader over the in-memory records.
func (r *Recorder) FeedbackSummary(context.Context) (Summary, error) {
	return r.Summary(), nil
}

// Dropped reports how many records could not be queued for persistence.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}
