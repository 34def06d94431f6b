package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type mockPersister struct {
	mu     sync.Mutex
	saved  []Record
	err    error
	block  chan struct{}
	called chan struct{}
}

func (m *mockPersister) SaveFeedback(_ context.Context, rec Record) error {
	if m.called != nil {
		select {
		case m.called <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *mockPersister) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func TestRecorder_MemoryOnly(t *testing.T) {
	r := NewRecorder(nil, 0)
	r.Record(Record{SessionID: "s1", ResponseID: "r1", Helpful: true})
	r.Record(Record{SessionID: "s1", ResponseID: "r1", Helpful: false})

	got := r.Recent(0)
	if len(got) != 2 {
		t.Fatalf("Recent len = %d, want 2 (duplicates accumulate)", len(got))
	}

	s := r.Summary()
	if s.Total != 2 || s.Helpful != 1 || s.NotHelpful != 1 {
		t.Errorf("Summary = %+v, want total=2 helpful=1 not_helpful=1", s)
	}

	// Run without a persister must not block.
	if err := r.Run(context.Background()); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRecorder_RecentWindow(t *testing.T) {
	r := NewRecorder(nil, 0)
	for _, id := range []string{"a", "b", "c"} {
		r.Record(Record{ResponseID: id})
	}
	got := r.Recent(2)
	if len(got) != 2 || got[0].ResponseID != "b" || got[1].ResponseID != "c" {
		t.Errorf("Recent(2) = %+v, want [b c]", got)
	}
}

func TestRecorder_PersistsThroughRun(t *testing.T) {
	p := &mockPersister{}
	r := NewRecorder(p, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	r.Record(Record{SessionID: "s1", ResponseID: "r1", Helpful: true, Timestamp: time.Now()})
	r.Record(Record{SessionID: "s1", ResponseID: "unknown", Helpful: false, Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for p.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if p.count() != 2 {
		t.Errorf("persisted = %d, want 2", p.count())
	}
}

func TestRecorder_FlushesOnShutdown(t *testing.T) {
	p := &mockPersister{}
	r := NewRecorder(p, 8)

	for i := 0; i < 5; i++ {
		r.Record(Record{ResponseID: "r"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	if p.count() != 5 {
		t.Errorf("persisted after flush = %d, want 5", p.count())
	}
}

func TestRecorder_FullQueueDoesNotBlock(t *testing.T) {
	p := &mockPersister{block: make(chan struct{}), called: make(chan struct{}, 1)}
	r := NewRecorder(p, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// First record is taken by the writer and blocks inside SaveFeedback.
	r.Record(Record{ResponseID: "1"})
	<-p.called

	finished := make(chan struct{})
	go func() {
		r.Record(Record{ResponseID: "2"}) // fills the queue
		r.Record(Record{ResponseID: "3"}) // dropped
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	if r.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", r.Dropped())
	}
	if len(r.Recent(0)) != 3 {
		t.Errorf("in-memory records = %d, want 3", len(r.Recent(0)))
	}

	close(p.block)
	cancel()
	<-done
}

func TestRecorder_BoundedWithPersister(t *testing.T) {
	p := &mockPersister{}
	total := maxRecent + 50
	r := NewRecorder(p, total)

	for i := 0; i < total; i++ {
		r.Record(Record{ResponseID: fmt.Sprintf("r%d", i), Helpful: i%2 == 0})
	}

	recent := r.Recent(0)
	if len(recent) != maxRecent {
		t.Fatalf("in-memory records = %d, want %d", len(recent), maxRecent)
	}
	if got, want := recent[0].ResponseID, "r50"; got != want {
		t.Errorf("oldest kept = %q, want %q", got, want)
	}
	if got, want := recent[len(recent)-1].ResponseID, fmt.Sprintf("r%d", total-1); got != want {
		t.Errorf("newest = %q, want %q", got, want)
	}

	sum := r.Summary()
	if sum.Total != total || sum.Helpful+sum.NotHelpful != total {
		t.Errorf("summary = %+v, want total %d", sum, total)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	if p.count() != total {
		t.Errorf("persisted = %d, want %d", p.count(), total)
	}
}

func TestRecorder_MemoryOnlyKeepsEverything(t *testing.T) {
	r := NewRecorder(nil, 0)
	for i := 0; i < maxRecent+10; i++ {
		r.Record(Record{ResponseID: "r"})
	}
	if got := len(r.Recent(0)); got != maxRecent+10 {
		t.Errorf("in-memory records = %d, want %d", got, maxRecent+10)
	}
}

func TestRecorder_PersistErrorIsSwallowed(t *testing.T) {
	p := &mockPersister{err: errors.New("disk full")}
	r := NewRecorder(p, 2)
	r.Record(Record{ResponseID: "r1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
	if len(r.Recent(0)) != 1 {
		t.Errorf("record lost from memory after persist error")
	}
}

func TestRecorder_Reader(t *testing.T) {
	var rd Reader = NewRecorder(nil, 0)
	rd.(*Recorder).Record(Record{ResponseID: "a", Helpful: true})
	rd.(*Recorder).Record(Record{ResponseID: "b"})

	got, err := rd.ListFeedback(context.Background(), 1)
	if err != nil || len(got) != 1 || got[0].ResponseID != "b" {
		t.Errorf("ListFeedback = %+v, %v", got, err)
	}
	sum, err := rd.FeedbackSummary(context.Background())
	if err != nil || sum.Total != 2 || sum.Helpful != 1 {
		t.Errorf("FeedbackSummary = %+v, %v", sum, err)
	}
}
