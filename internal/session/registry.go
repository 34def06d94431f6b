// Package session routes channel events to the pipeline and replies back on
// the channel the event arrived on, as long as that channel is still bound.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/callcoach/internal/feedback"
	"github.com/kalambet/callcoach/internal/pipeline"
	"github.com/kalambet/callcoach/internal/protocol"
)

// ErrChannelClosed is returned by Channel.Send after the peer went away.
var ErrChannelClosed = errors.New("channel closed")

// Channel is one duplex connection to a client.
type Channel interface {
	Send(ctx context.Context, frame any) error
	Close() error
}

// Processor produces the guidance for one utterance.
type Processor interface {
	Process(ctx context.Context, sessionID, transcript string) (pipeline.Guidance, error)
}

// FeedbackSink accepts feedback without blocking.
type FeedbackSink interface {
	Record(rec feedback.Record)
}

// Registry holds the active channel of each session and serializes event
// processing per session id. Different sessions run concurrently.
type Registry struct {
	proc     Processor
	feedback FeedbackSink
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	bindings map[string]*Binding
	locks    map[string]*sessionLock
	inflight sync.WaitGroup
}

// Binding is one channel's claim on a session id. It goes stale as soon as
// another channel binds the same id or the session is unbound.
type Binding struct {
	r     *Registry
	id    string
	ch    Channel
	bound time.Time
	once  sync.Once
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates an empty Registry.
func NewRegistry(proc Processor, sink FeedbackSink, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		proc:     proc,
		feedback: sink,
		now:      time.Now,
		logger:   logger,
		bindings: make(map[string]*Binding),
		locks:    make(map[string]*sessionLock),
	}
}

// Bind makes ch the active channel for sessionID. A channel already bound to
// the id is defunct from this point: it is closed, its pending replies are
// dropped and events it still delivers through its Binding are ignored.
func (r *Registry) Bind(sessionID string, ch Channel) *Binding {
	b := &Binding{r: r, id: sessionID, ch: ch, bound: r.now()}

	r.mu.Lock()
	prev := r.bindings[sessionID]
	r.bindings[sessionID] = b
	r.mu.Unlock()

	if prev == nil {
		r.logger.Info("session bound", "session_id", sessionID)
		return b
	}
	r.logger.Info("session rebound, closing previous channel", "session_id", sessionID)
	if err := prev.ch.Close(); err != nil {
		r.logger.Debug("closing replaced channel", "session_id", sessionID, "error", err)
	}
	return b
}

// Active reports whether b is still the session's bound channel.
func (b *Binding) Active() bool {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	return b.r.bindings[b.id] == b
}

// Dispatch processes ev as coming from b's channel. Events from a stale
// binding are ignored; replies go to b's channel only while it is active.
func (b *Binding) Dispatch(ctx context.Context, ev protocol.Event) {
	if !b.Active() {
		b.r.logger.Debug("ignoring event from replaced channel", "session_id", b.id, "type", ev.Type)
		return
	}
	b.r.dispatch(ctx, b.id, ev, b)
}

// Unbind removes the binding if b is still the active one. Safe to call more
// than once.
func (b *Binding) Unbind() {
	b.once.Do(func() {
		b.r.mu.Lock()
		if b.r.bindings[b.id] == b {
			delete(b.r.bindings, b.id)
		}
		b.r.mu.Unlock()
	})
}

// Unbind force-detaches whatever channel is bound to sessionID and closes
// it. In-flight work for the session keeps running; its reply is dropped.
// It reports whether a channel was bound.
func (r *Registry) Unbind(sessionID string) bool {
	r.mu.Lock()
	b := r.bindings[sessionID]
	delete(r.bindings, sessionID)
	r.mu.Unlock()

	if b == nil {
		return false
	}
	r.logger.Info("session unbound", "session_id", sessionID)
	if err := b.ch.Close(); err != nil {
		r.logger.Debug("closing channel", "session_id", sessionID, "error", err)
	}
	return true
}

// Dispatch processes one inbound event for sessionID and replies on
// whichever channel is bound when the reply is ready. Connection handlers
// use Binding.Dispatch instead.
func (r *Registry) Dispatch(ctx context.Context, sessionID string, ev protocol.Event) {
	r.dispatch(ctx, sessionID, ev, nil)
}

// dispatch runs audio through the pipeline under the session's lock and
// records and confirms feedback immediately. Anything else is ignored.
func (r *Registry) dispatch(ctx context.Context, sessionID string, ev protocol.Event, from *Binding) {
	r.inflight.Add(1)
	defer r.inflight.Done()

	switch {
	case ev.Audio != nil:
		r.handleAudio(ctx, sessionID, ev.Audio.Transcript, from)
	case ev.Feedback != nil:
		r.handleFeedback(ctx, sessionID, *ev.Feedback, from)
	default:
		r.logger.Debug("ignoring event", "session_id", sessionID, "type", ev.Type)
	}
}

func (r *Registry) handleAudio(ctx context.Context, sessionID, transcript string, from *Binding) {
	unlock := r.lock(sessionID)
	// The channel may have been replaced while this event waited its turn.
	if from != nil && !from.Active() {
		unlock()
		r.logger.Debug("dropping queued event from replaced channel", "session_id", sessionID)
		return
	}
	g, err := r.proc.Process(ctx, sessionID, transcript)
	unlock()
	if err != nil {
		return
	}
	r.emit(ctx, sessionID, protocol.NewGuidance(g.ResponseID, g.Text), from)
}

func (r *Registry) handleFeedback(ctx context.Context, sessionID string, fb protocol.Feedback, from *Binding) {
	r.feedback.Record(feedback.Record{
		SessionID:  sessionID,
		ResponseID: fb.ResponseID,
		Helpful:    fb.IsHelpful,
		Timestamp:  r.now(),
	})
	r.emit(ctx, sessionID, protocol.NewConfirmation(), from)
}

// emit sends frame on the session's bound channel. With a non-nil from, the
// frame is dropped unless from is still that binding. Send failures are
// logged and otherwise ignored.
func (r *Registry) emit(ctx context.Context, sessionID string, frame any, from *Binding) {
	r.mu.Lock()
	b := r.bindings[sessionID]
	r.mu.Unlock()

	if b == nil {
		r.logger.Info("no channel bound, dropping reply", "session_id", sessionID)
		return
	}
	if from != nil && b != from {
		r.logger.Info("channel replaced, dropping reply", "session_id", sessionID)
		return
	}
	if err := b.ch.Send(ctx, frame); err != nil {
		r.logger.Warn("sending reply failed", "session_id", sessionID, "error", err)
	}
}

// lock acquires the per-session mutex. Entries are reference counted so the
// map only holds sessions with work queued or running.
func (r *Registry) lock(sessionID string) (unlock func()) {
	r.mu.Lock()
	l := r.locks[sessionID]
	if l == nil {
		l = &sessionLock{}
		r.locks[sessionID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, sessionID)
		}
		r.mu.Unlock()
	}
}

// Count returns the number of bound sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// SessionInfo describes one bound session.
type SessionInfo struct {
	ID      string    `json:"session_id"`
	BoundAt time.Time `json:"bound_at"`
}

// Sessions lists bound sessions ordered by id.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	out := make([]SessionInfo, 0, len(r.bindings))
	for id, b := range r.bindings {
		out = append(out, SessionInfo{ID: id, BoundAt: b.bound})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CloseAll unbinds and closes every channel. Used at shutdown.
func (r *Registry) CloseAll() (closed int) {
	r.mu.Lock()
	chans := make([]Channel, 0, len(r.bindings))
	for id, b := range r.bindings {
		chans = append(chans, b.ch)
		delete(r.bindings, id)
	}
	r.mu.Unlock()

	for _, ch := range chans {
		if err := ch.Close(); err != nil {
			r.logger.Debug("closing channel", "error", err)
		}
		closed++
	}
	return closed
}

// Wait blocks until in-flight dispatches finish or ctx is done. It reports
// whether everything finished.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.inflight.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
