package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "CALLCOACH_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "CALLCOACH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.static_dir", typ: kString, env: "CALLCOACH_SERVER_STATIC_DIR",
		apply:   func(cfg *Config, v any) { cfg.Server.StaticDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.StaticDir },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "CALLCOACH_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "server.admin_token", typ: kString, env: "CALLCOACH_SERVER_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "log.level", typ: kString, env: "CALLCOACH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "CALLCOACH_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "completion.provider", typ: kString, env: "CALLCOACH_COMPLETION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Completion.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Provider },
	},
	{
		key: "completion.base_url", typ: kString, env: "CALLCOACH_COMPLETION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Completion.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.BaseURL },
	},
	{
		key: "completion.api_key", typ: kString, env: "CALLCOACH_COMPLETION_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Completion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIKey },
	},
	{
		key: "completion.model", typ: kString, env: "CALLCOACH_COMPLETION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Completion.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Model },
	},
	{
		key: "completion.api_version", typ: kString, env: "CALLCOACH_COMPLETION_API_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Completion.APIVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIVersion },
	},
	{
		key: "completion.max_tokens", typ: kInt, env: "CALLCOACH_COMPLETION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Completion.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Completion.MaxTokens },
	},
	{
		key: "completion.temperature", typ: kFloat, env: "CALLCOACH_COMPLETION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Completion.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Completion.Temperature },
	},
	{
		key: "completion.verify", typ: kBool, env: "CALLCOACH_COMPLETION_VERIFY",
		apply:   func(cfg *Config, v any) { cfg.Completion.Verify = v.(bool) },
		extract: func(cfg Config) any { return cfg.Completion.Verify },
	},
	{
		key: "translator.endpoint", typ: kString, env: "CALLCOACH_TRANSLATOR_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Translator.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Translator.Endpoint },
	},
	{
		key: "translator.api_key", typ: kString, env: "CALLCOACH_TRANSLATOR_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Translator.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Translator.APIKey },
	},
	{
		key: "translator.region", typ: kString, env: "CALLCOACH_TRANSLATOR_REGION",
		apply:   func(cfg *Config, v any) { cfg.Translator.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Translator.Region },
	},
	{
		key: "pipeline.pivot_language", typ: kString, env: "CALLCOACH_PIPELINE_PIVOT_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.PivotLanguage = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.PivotLanguage },
	},
	{
		key: "pipeline.history_window", typ: kInt, env: "CALLCOACH_PIPELINE_HISTORY_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.HistoryWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.HistoryWindow },
	},
	{
		key: "pipeline.call_timeout", typ: kString, env: "CALLCOACH_PIPELINE_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.CallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.CallTimeout },
	},
	{
		key: "storage.backend", typ: kString, env: "CALLCOACH_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CALLCOACH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.retention", typ: kString, env: "CALLCOACH_STORAGE_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Storage.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Retention },
	},
	{
		key: "storage.purge_schedule", typ: kString, env: "CALLCOACH_STORAGE_PURGE_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Storage.PurgeSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PurgeSchedule },
	},
	{
		key: "feedback.queue_size", typ: kInt, env: "CALLCOACH_FEEDBACK_QUEUE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Feedback.QueueSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Feedback.QueueSize },
	},
	{
		key: "playbook.path", typ: kString, env: "CALLCOACH_PLAYBOOK_PATH",
		apply:   func(cfg *Config, v any) { cfg.Playbook.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Playbook.Path },
	},
	{
		key: "playbook.url", typ: kString, env: "CALLCOACH_PLAYBOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Playbook.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Playbook.URL },
	},
	{
		key: "playbook.product_sheets", typ: kString, env: "CALLCOACH_PLAYBOOK_PRODUCT_SHEETS",
		apply:   func(cfg *Config, v any) { cfg.Playbook.ProductSheets = v.(string) },
		extract: func(cfg Config) any { return cfg.Playbook.ProductSheets },
	},
}

// parseValue converts raw into the Go type of t.
func parseValue(t keyType, raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Get(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}
