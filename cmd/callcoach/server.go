package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/callcoach/internal/api"
	"github.com/kalambet/callcoach/internal/config"
	"github.com/kalambet/callcoach/internal/feedback"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guidance server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve the MCP admin tools on stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "callcoach.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(lc config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func runServer(withMCP bool) error {
	fmt.Fprintf(stderr, "callcoach version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(cfg.BaseURL() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Connecting services...")
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if a.retention != nil {
		a.retention.Start()
		slog.Info("retention scheduled", "max_age", cfg.Retention(), "schedule", cfg.Storage.PurgeSchedule)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The writer outlives the HTTP server so feedback from draining sessions
	// is still persisted.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.recorder.Run(writerCtx)
	})

	g.Go(func() error {
		slog.Info("callcoach listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		return shutdown(srv, a, stopWriter)
	})

	if withMCP {
		stdioSrv := server.NewStdioServer(a.mcp)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// shutdown stops accepting connections, closes live sessions, waits for
// in-flight events and then lets the feedback writer drain.
func shutdown(srv *http.Server, a *app, stopWriter context.CancelFunc) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer stopWriter()

	err := srv.Shutdown(shutdownCtx)

	closed := a.sessions.CloseAll()
	if !a.sessions.Wait(shutdownCtx) {
		slog.Warn("in-flight events did not finish before shutdown timeout")
	}
	slog.Info("sessions closed", "count", closed)
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("callcoach is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop callcoach (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to callcoach (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	reportStatus(ctx, clientFor(cfg), cfg)
	return nil
}

func reportStatus(ctx context.Context, client *apiClient, cfg config.Config) {
	var health map[string]string
	if err := client.getJSON(ctx, "/health", &health); err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "%s on %s", health["status"], cfg.Addr())

		var sessions api.SessionsResponse
		if err := client.getJSON(ctx, "/admin/sessions", &sessions); err == nil {
			printStatus("Live sessions", "%d", sessions.Count)
		} else {
			printWarning("could not list sessions: %v", err)
		}

		var sum feedback.Summary
		if err := client.getJSON(ctx, "/admin/feedback/summary", &sum); err == nil {
			printStatus("Feedback", "%d total, %s helpful", sum.Total, helpfulRate(sum))
		}
	}

	printStatus("Completion", "%s (%s)", cfg.Completion.Provider, cfg.Completion.Model)
	if cfg.Translator.APIKey != "" {
		printStatus("Translator", "%s", cfg.Translator.Endpoint)
	} else {
		printStatus("Translator", "passthrough (%s)", cfg.Pipeline.PivotLanguage)
	}
	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
}

func helpfulRate(s feedback.Summary) string {
	if s.Total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", 100*float64(s.Helpful)/float64(s.Total))
}
