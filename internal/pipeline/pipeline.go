// Package pipeline turns one caller utterance into one suggested reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/callcoach/internal/completion"
	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/language"
	"github.com/kalambet/callcoach/internal/playbook"
)

// FallbackResponse replaces the completion when the completion service fails.
const FallbackResponse = "Could you clarify your specific requirements? This will help me provide the best solution."

const (
	defaultPivot         = "en"
	defaultHistoryWindow = 10
	defaultCallTimeout   = 10 * time.Second
	defaultMaxTokens     = 150
	defaultTemperature   = 0.7
)

// ErrNoReply is returned when both the normal and the degraded path failed.
var ErrNoReply = errors.New("no reply produced")

// Config tunes a Pipeline. Zero values select the defaults.
type Config struct {
	SystemPrompt  string
	Pivot         string
	HistoryWindow int
	CallTimeout   time.Duration
	MaxTokens     int
	Temperature   float32
}

// Guidance is the reply for one processed utterance.
type Guidance struct {
	ResponseID     string
	Text           string
	SourceLanguage string
	Degraded       bool
	Failures       []Failure
}

// Pipeline runs detect, translate-in, complete, translate-out for each
// utterance and records the exchange. Callers serialize calls per session.
type Pipeline struct {
	lang   language.Service
	llm    completion.Completer
	store  conversation.Store
	cfg    Config
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline wired to its collaborators.
func New(lang language.Service, llm completion.Completer, store conversation.Store, cfg Config, opts ...Option) *Pipeline {
	if cfg.Pivot == "" {
		cfg.Pivot = defaultPivot
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	p := &Pipeline{
		lang:   lang,
		llm:    llm,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// errDegrade asks Process to switch to the degraded path.
type errDegrade struct {
	failure Failure
	err     error
}

func (e *errDegrade) Error() string {
	return fmt.Sprintf("%s failed: %v", e.failure, e.err)
}

func (e *errDegrade) Unwrap() error { return e.err }

// Process handles one utterance. A failing detection or an unexpected fault
// switches to the degraded path, which skips translation. An error is
// returned only when no reply can be produced at all.
func (p *Pipeline) Process(ctx context.Context, sessionID, transcript string) (Guidance, error) {
	log := p.logger.With("session_id", sessionID)

	g, err := p.guard(func() (Guidance, error) { return p.normal(ctx, sessionID, transcript) })
	if err == nil {
		log.Debug("guidance ready", "response_id", g.ResponseID, "source_language", g.SourceLanguage, "degraded", false)
		return g, nil
	}
	log.Warn("pipeline degraded", "error", err)

	g, err = p.guard(func() (Guidance, error) { return p.degraded(ctx, sessionID, transcript) })
	if err != nil {
		log.Error("degraded path failed, dropping reply", "error", err)
		return Guidance{}, fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	log.Debug("guidance ready", "response_id", g.ResponseID, "degraded", true)
	return g, nil
}

// guard converts a panic in fn into an error.
func (p *Pipeline) guard(fn func() (Guidance, error)) (g Guidance, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (p *Pipeline) normal(ctx context.Context, sessionID, transcript string) (Guidance, error) {
	var g Guidance

	src := p.detect(ctx, transcript)
	if !src.OK() {
		return Guidance{}, &errDegrade{failure: src.Failure, err: src.Err}
	}
	g.SourceLanguage = src.Value
	foreign := src.Value != p.cfg.Pivot

	normalized := transcript
	if foreign {
		in := p.translate(ctx, transcript, p.cfg.Pivot, FailureTranslateIn)
		if in.OK() {
			normalized = in.Value
		} else {
			p.logger.Warn("translation to pivot failed, using original text", "session_id", sessionID, "error", in.Err)
			g.Failures = append(g.Failures, in.Failure)
		}
	}

	text, failures := p.respond(ctx, sessionID, normalized)
	g.Failures = append(g.Failures, failures...)
	g.ResponseID = text.id

	g.Text = text.value
	if foreign {
		out := p.translate(ctx, text.value, src.Value, FailureTranslateOut)
		if out.OK() {
			g.Text = out.Value
		} else {
			p.logger.Warn("translation to caller language failed, sending pivot text", "session_id", sessionID, "error", out.Err)
			g.Failures = append(g.Failures, out.Failure)
		}
	}
	return g, nil
}

func (p *Pipeline) degraded(ctx context.Context, sessionID, transcript string) (Guidance, error) {
	text, failures := p.respond(ctx, sessionID, transcript)
	return Guidance{
		ResponseID: text.id,
		Text:       text.value,
		Degraded:   true,
		Failures:   failures,
	}, nil
}

type reply struct {
	id    string
	value string
}

// respond reads the history snapshot, generates and cleans the response,
// then appends the exchange. The snapshot is taken before the append so the
// current turn never appears in its own context.
func (p *Pipeline) respond(ctx context.Context, sessionID, transcript string) (reply, []Failure) {
	var failures []Failure

	hist := p.history(ctx, sessionID)
	if !hist.OK() {
		p.logger.Warn("reading history failed, continuing without context", "session_id", sessionID, "error", hist.Err)
		failures = append(failures, hist.Failure)
	}

	text := FallbackResponse
	gen := p.generate(ctx, hist.Value, transcript)
	if gen.OK() {
		text = CleanResponse(gen.Value)
	} else {
		p.logger.Warn("completion failed, using fallback", "session_id", sessionID, "error", gen.Err)
		failures = append(failures, gen.Failure)
	}

	id := p.newID()
	ex := conversation.Exchange{
		Timestamp:  p.now(),
		Transcript: transcript,
		Response:   text,
		ResponseID: id,
	}
	if err := p.store.Append(ctx, sessionID, ex); err != nil {
		p.logger.Warn("appending exchange failed", "session_id", sessionID, "error", err)
		failures = append(failures, FailureAppend)
	}
	return reply{id: id, value: text}, failures
}

func (p *Pipeline) detect(ctx context.Context, text string) Result[string] {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	lang, err := p.lang.Detect(ctx, text)
	if err != nil {
		return failed[string](FailureDetect, err)
	}
	return ok(lang)
}

func (p *Pipeline) translate(ctx context.Context, text, to string, f Failure) Result[string] {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	out, err := p.lang.Translate(ctx, text, to)
	if err != nil {
		return failed[string](f, err)
	}
	return ok(out)
}

func (p *Pipeline) history(ctx context.Context, sessionID string) Result[[]conversation.Exchange] {
	h, err := p.store.History(ctx, sessionID, p.cfg.HistoryWindow)
	if err != nil {
		return failed[[]conversation.Exchange](FailureHistory, err)
	}
	return ok(h)
}

func (p *Pipeline) generate(ctx context.Context, hist []conversation.Exchange, transcript string) Result[string] {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	out, err := p.llm.Complete(ctx, p.Messages(hist, transcript), completion.Options{
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return failed[string](FailureComplete, err)
	}
	return ok(out)
}

// Messages builds the completion input: the system instruction, each prior
// exchange as a user turn plus an assistant turn when it has a response, and
// the current transcript.
func (p *Pipeline) Messages(hist []conversation.Exchange, transcript string) []completion.Message {
	msgs := make([]completion.Message, 0, 2*len(hist)+2)
	msgs = append(msgs, completion.Message{Role: completion.RoleSystem, Content: p.cfg.SystemPrompt})
	for _, ex := range hist {
		msgs = append(msgs, completion.Message{Role: completion.RoleUser, Content: ex.Transcript})
		if ex.Response != "" {
			msgs = append(msgs, completion.Message{Role: completion.RoleAssistant, Content: ex.Response})
		}
	}
	msgs = append(msgs, completion.Message{Role: completion.RoleUser, Content: playbook.CustomerTurn(transcript)})
	return msgs
}
