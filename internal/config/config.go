package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Completion CompletionConfig
	Translator TranslatorConfig
	Pipeline   PipelineConfig
	Storage    StorageConfig
	Feedback   FeedbackConfig
	Playbook   PlaybookConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	StaticDir      string
	AllowedOrigins string
	AdminToken     string
}

type LogConfig struct {
	Level  string
	Format string
}

type CompletionConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	APIVersion  string
	MaxTokens   int
	Temperature float64
	Verify      bool
}

type TranslatorConfig struct {
	Endpoint string
	APIKey   string
	Region   string
}

type PipelineConfig struct {
	PivotLanguage string
	HistoryWindow int
	CallTimeout   string
}

type StorageConfig struct {
	Backend       string
	DataDir       string
	Retention     string
	PurgeSchedule string
}

type FeedbackConfig struct {
	QueueSize int
}

type PlaybookConfig struct {
	Path          string
	URL           string
	ProductSheets string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			StaticDir:      "static",
			AllowedOrigins: "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Completion: CompletionConfig{
			Provider:    "azure",
			Model:       "gpt-4",
			APIVersion:  "2023-05-15",
			MaxTokens:   150,
			Temperature: 0.7,
			Verify:      true,
		},
		Translator: TranslatorConfig{
			Endpoint: "https://api.cognitive.microsofttranslator.com",
			Region:   "global",
		},
		Pipeline: PipelineConfig{
			PivotLanguage: "en",
			HistoryWindow: 10,
			CallTimeout:   "10s",
		},
		Storage: StorageConfig{
			Backend:       "memory",
			DataDir:       defaultDataDir(),
			PurgeSchedule: "@hourly",
		},
		Feedback: FeedbackConfig{
			QueueSize: 256,
		},
		Playbook: PlaybookConfig{
			Path: "initial_data.json",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.callcoach.app) and
// secrets fall back to macOS Keychain (service: callcoach).
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/callcoach/config.json
// and secrets fall back to $XDG_DATA_HOME/callcoach/secrets.json.
//
// Environment variables (CALLCOACH_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(platformStores())
}

func loadWith(b Backend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(secretAccount(s.key)); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// secretAccount maps a dotted key to its secret store account name.
func secretAccount(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

// Validate reports every invalid enumeration or window in cfg.
func (c Config) Validate() error {
	var errs []error

	oneOf := func(key, val string, allowed ...string) {
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", key, val, strings.Join(allowed, ", ")))
	}
	positive := func(key string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %d", key, v))
		}
	}

	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", c.Log.Format, "text", "json")
	oneOf("completion.provider", c.Completion.Provider, "azure", "openai", "ollama", "stub")
	oneOf("storage.backend", c.Storage.Backend, "memory", "sqlite")

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	positive("completion.max_tokens", c.Completion.MaxTokens)
	positive("pipeline.history_window", c.Pipeline.HistoryWindow)
	positive("feedback.queue_size", c.Feedback.QueueSize)

	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		errs = append(errs, fmt.Errorf("completion.temperature: %v out of range [0, 2]", c.Completion.Temperature))
	}
	if strings.TrimSpace(c.Pipeline.PivotLanguage) == "" {
		errs = append(errs, errors.New("pipeline.pivot_language: must not be empty"))
	}
	if d, err := time.ParseDuration(c.Pipeline.CallTimeout); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.call_timeout: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.call_timeout: must be positive, got %s", d))
	}
	if c.Storage.Retention != "" {
		if d, err := time.ParseDuration(c.Storage.Retention); err != nil {
			errs = append(errs, fmt.Errorf("storage.retention: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("storage.retention: must be positive, got %s", d))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CallTimeout is the parsed pipeline.call_timeout. Call after Validate.
func (c Config) CallTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Pipeline.CallTimeout)
	return d
}

// Retention is the parsed storage.retention; zero keeps data forever.
func (c Config) Retention() time.Duration {
	if c.Storage.Retention == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Storage.Retention)
	return d
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseURL is the URL CLI commands use to reach a running server.
func (c Config) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// AllowedOrigins splits server.allowed_origins.
func (c Config) AllowedOrigins() []string {
	return splitList(c.Server.AllowedOrigins)
}

// ProductSheets splits playbook.product_sheets.
func (c Config) ProductSheets() []string {
	return splitList(c.Playbook.ProductSheets)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
