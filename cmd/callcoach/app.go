package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"

	"github.com/kalambet/callcoach/internal/api"
	"github.com/kalambet/callcoach/internal/completion"
	"github.com/kalambet/callcoach/internal/config"
	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/feedback"
	"github.com/kalambet/callcoach/internal/language"
	"github.com/kalambet/callcoach/internal/pipeline"
	"github.com/kalambet/callcoach/internal/playbook"
	"github.com/kalambet/callcoach/internal/session"
	"github.com/kalambet/callcoach/internal/storage"
)

// app is the fully wired service.
type app struct {
	handler  http.Handler
	mcp      *server.MCPServer
	sessions *session.Registry
	recorder *feedback.Recorder

	db        *storage.Store // nil with the memory backend
	retention *cron.Cron     // nil when retention is off
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	var lang language.Service
	if cfg.Translator.APIKey != "" {
		lang = language.NewAzure(cfg.Translator.Endpoint, cfg.Translator.APIKey, cfg.Translator.Region, cfg.Pipeline.PivotLanguage)
		slog.Info("translator configured", "endpoint", cfg.Translator.Endpoint, "region", cfg.Translator.Region)
	} else {
		lang = language.Passthrough{Pivot: cfg.Pipeline.PivotLanguage}
		slog.Warn("no translator key, transcripts are assumed to be in the pivot language", "pivot", cfg.Pipeline.PivotLanguage)
	}

	llm := completion.New(ctx, completion.Settings{
		Provider:   cfg.Completion.Provider,
		BaseURL:    cfg.Completion.BaseURL,
		APIKey:     cfg.Completion.APIKey,
		Model:      cfg.Completion.Model,
		APIVersion: cfg.Completion.APIVersion,
		Verify:     cfg.Completion.Verify,
	})

	pb, origin := playbook.Load(ctx, playbook.Source{
		URL:           cfg.Playbook.URL,
		Path:          cfg.Playbook.Path,
		ProductSheets: cfg.ProductSheets(),
	})
	slog.Info("playbook loaded", "origin", origin,
		"scripts", len(pb.SalesScripts), "faqs", len(pb.FAQs), "products", len(pb.ProductDetails))
	prompt := playbook.NewComposer(0).Compose(pb)

	var (
		history conversation.Store
		lookup  conversation.Lookup
		reader  feedback.Reader
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.db = db
		a.recorder = feedback.NewRecorder(db, cfg.Feedback.QueueSize)
		history, lookup, reader = db, db, db

		if maxAge := cfg.Retention(); maxAge > 0 {
			c, err := storage.ScheduleRetention(db, cfg.Storage.PurgeSchedule, maxAge, nil)
			if err != nil {
				db.Close()
				return nil, err
			}
			a.retention = c
		}
	default:
		mem := conversation.NewMemoryStore()
		a.recorder = feedback.NewRecorder(nil, cfg.Feedback.QueueSize)
		history, lookup, reader = mem, mem, a.recorder
		if cfg.Retention() > 0 {
			slog.Warn("storage.retention is ignored by the memory backend")
		}
	}

	p := pipeline.New(lang, llm, history, pipeline.Config{
		SystemPrompt:  prompt,
		Pivot:         cfg.Pipeline.PivotLanguage,
		HistoryWindow: cfg.Pipeline.HistoryWindow,
		CallTimeout:   cfg.CallTimeout(),
		MaxTokens:     cfg.Completion.MaxTokens,
		Temperature:   float32(cfg.Completion.Temperature),
	})
	a.sessions = session.NewRegistry(p, a.recorder, nil)

	a.handler = api.NewRouter(api.Deps{
		Sessions:       a.sessions,
		History:        history,
		Lookup:         lookup,
		Feedback:       reader,
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.AllowedOrigins(),
		AdminToken:     cfg.Server.AdminToken,
	})
	a.mcp = api.NewMCPServer(api.MCPDeps{
		Sessions: a.sessions,
		History:  history,
		Lookup:   lookup,
		Feedback: reader,
		Version:  version,
	})
	return a, nil
}

// close stops the retention scheduler and closes storage. Call after the
// feedback writer has drained.
func (a *app) close() {
	if a.retention != nil {
		<-a.retention.Stop().Done()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}
}
