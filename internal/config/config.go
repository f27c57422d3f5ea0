// Package config loads and validates the process-wide inbox configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/oarepo/ldn-inbox/internal/action"
	"github.com/oarepo/ldn-inbox/internal/metadata"
)

// ConfigurationError reports a malformed configuration unit. Offending
// units are skipped fail-closed; the error is reported, never swallowed.
type ConfigurationError struct {
	Unit   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Unit, e.Reason)
}

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Inbox   InboxConfig   `koanf:"inbox"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type InboxConfig struct {
	// RepeatOver names the context array to fan the notification out
	// over; empty disables repetition.
	RepeatOver string `koanf:"repeat_over"`

	// OwnBaseURL is the repository's public base URL.
	OwnBaseURL string `koanf:"own_base_url"`

	// AllowedExternalResolvers lists the URL prefixes of identifier
	// resolvers that may be dereferenced.
	AllowedExternalResolvers []string `koanf:"allowed_external_resolvers"`

	// DereferenceTimeout bounds the external HEAD request, e.g. "5s".
	DereferenceTimeout string `koanf:"dereference_timeout"`

	Changes []ChangeConfig `koanf:"changes"`
	Actions []ActionConfig `koanf:"actions"`
}

// ChangeConfig is one configured metadata change. Op selects the variant:
// "add" uses qualifier/value, "remove" uses the parallel qualifiers/values
// lists.
type ChangeConfig struct {
	Op         string   `koanf:"op"`
	Schema     string   `koanf:"schema"`
	Element    string   `koanf:"element"`
	Language   string   `koanf:"language"`
	Condition  string   `koanf:"condition"`
	Qualifier  string   `koanf:"qualifier"`
	Value      string   `koanf:"value"`
	Qualifiers []string `koanf:"qualifiers"`
	Values     []string `koanf:"values"`
}

// ActionConfig is one configured action with its type-specific settings.
type ActionConfig struct {
	Type     string         `koanf:"type"`
	Settings map[string]any `koanf:"settings"`
}

// Load reads the YAML config at path and applies LDN_-prefixed environment
// overrides (LDN_SERVER_PORT, LDN_INBOX_OWN_BASE_URL, ...).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("LDN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LDN_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.path") {
		k.Set("storage.path", "./data/inbox.db")
	}
	if !k.Exists("inbox.dereference_timeout") {
		k.Set("inbox.dereference_timeout", "5s")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Inbox.OwnBaseURL == "" {
		return nil, &ConfigurationError{Unit: "inbox.own_base_url", Reason: "must be set"}
	}
	// An empty prefix would match every URL and disable the allow-list.
	for i, prefix := range cfg.Inbox.AllowedExternalResolvers {
		if strings.TrimSpace(prefix) == "" {
			return nil, &ConfigurationError{
				Unit:   fmt.Sprintf("inbox.allowed_external_resolvers[%d]", i),
				Reason: "prefix cannot be empty",
			}
		}
	}
	if _, err := cfg.DereferenceTimeout(); err != nil {
		return nil, &ConfigurationError{Unit: "inbox.dereference_timeout", Reason: err.Error()}
	}

	return &cfg, nil
}

// DereferenceTimeout parses the configured dereference timeout.
func (c *Config) DereferenceTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Inbox.DereferenceTimeout)
}

// BuildChanges converts the configured change list into change rules, in
// order. Malformed entries are skipped fail-closed and logged loudly; the
// rest of the list still applies.
func BuildChanges(cfgs []ChangeConfig, logger *slog.Logger) []metadata.Change {
	if logger == nil {
		logger = slog.Default()
	}

	changes := make([]metadata.Change, 0, len(cfgs))
	for i, cc := range cfgs {
		field := metadata.Field{Schema: cc.Schema, Element: cc.Element, Language: cc.Language}
		switch cc.Op {
		case "add":
			if cc.Value == "" {
				logger.Error("skipping add change without value template", slog.Int("change", i))
				continue
			}
			changes = append(changes, &metadata.AddChange{
				Field:             field,
				ConditionTemplate: cc.Condition,
				Qualifier:         cc.Qualifier,
				ValueTemplate:     cc.Value,
			})
		case "remove":
			if len(cc.Qualifiers) != len(cc.Values) {
				logger.Error("skipping remove change with mismatched qualifier/value lists",
					slog.Int("change", i),
					slog.Int("qualifiers", len(cc.Qualifiers)),
					slog.Int("values", len(cc.Values)))
				continue
			}
			changes = append(changes, &metadata.RemoveChange{
				Field:             field,
				ConditionTemplate: cc.Condition,
				Qualifiers:        cc.Qualifiers,
				ValueTemplates:    cc.Values,
			})
		default:
			logger.Error("skipping change with unknown op",
				slog.Int("change", i),
				slog.String("op", cc.Op))
		}
	}
	return changes
}

// BuildActions instantiates the configured action chain, in order. Unknown
// or misconfigured actions are skipped fail-closed and logged loudly.
func BuildActions(cfgs []ActionConfig, deps action.Deps, logger *slog.Logger) []action.Action {
	if logger == nil {
		logger = slog.Default()
	}

	actions := make([]action.Action, 0, len(cfgs))
	for i, ac := range cfgs {
		a, err := action.Create(ac.Type, ac.Settings, deps)
		if err != nil {
			logger.Error("skipping unbuildable action",
				slog.Int("action", i),
				slog.String("type", ac.Type),
				slog.String("error", err.Error()))
			continue
		}
		actions = append(actions, a)
	}
	return actions
}
