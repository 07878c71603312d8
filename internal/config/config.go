// Package config loads and validates the single configuration object
// handed to every component of a capture run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/recall/internal/dedup"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/provider"
)

// ErrMissingCredential is returned when a hosted provider has no API key.
var ErrMissingCredential = errors.New("missing credential")

// Duration is a time.Duration written as "60s" or "8h" in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Capture backends.
const (
	BackendScreen = "screen"
	BackendPlugin = "plugin"
	BackendStub   = "stub"
)

type CaptureConfig struct {
	Interval        Duration `json:"interval" yaml:"interval"`
	SessionDuration Duration `json:"session_duration" yaml:"session_duration"`
	Dir             string   `json:"dir" yaml:"dir"`
	OnError         string   `json:"on_error" yaml:"on_error"`
	Dedup           string   `json:"dedup" yaml:"dedup"`
	ExcludedWindows []string `json:"excluded_windows" yaml:"excluded_windows"`
	Backend         string   `json:"backend" yaml:"backend"`
	PluginPath      string   `json:"plugin_path" yaml:"plugin_path"`
}

// ModelConfig selects a provider and model for one capability.
type ModelConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

type ChatConfig struct {
	ModelConfig `yaml:",inline"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
}

type RetrievalConfig struct {
	K int `json:"k" yaml:"k"`
}

type RequestConfig struct {
	Timeout     Duration `json:"timeout" yaml:"timeout"`
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
	Backoff     Duration `json:"backoff" yaml:"backoff"`
}

// Config is the full run configuration.
type Config struct {
	Capture   CaptureConfig   `json:"capture" yaml:"capture"`
	Vision    ModelConfig     `json:"vision" yaml:"vision"`
	Embedding ModelConfig     `json:"embedding" yaml:"embedding"`
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Requests  RequestConfig   `json:"requests" yaml:"requests"`
}

// Default returns the stock configuration.
// ProviderModels names the vision, embedding and chat models a provider
// uses when none is configured.
type ProviderModels struct {
	Vision    string
	Embedding string
	Chat      string
}

var defaultModels = map[string]ProviderModels{
	"openai":    {Vision: "gpt-4.1-nano", Embedding: "text-embedding-3-small", Chat: "gpt-4.1-nano"},
	"ollama":    {Vision: "llama3.2-vision", Embedding: "nomic-embed-text", Chat: "llama3.2"},
	"gemini":    {Vision: "gemini-1.5-flash", Embedding: "text-embedding-004", Chat: "gemini-1.5-flash"},
	"anthropic": {Vision: "claude-3-5-haiku-latest", Chat: "claude-3-5-haiku-latest"},
}

// DefaultModels returns the stock models for provider. Providers that
// take no model name (stub, cli) get the zero value.
func DefaultModels(provider string) ProviderModels {
	return defaultModels[provider]
}

func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Interval:        Duration(guard.DefaultPolicy.Interval),
			SessionDuration: Duration(guard.DefaultPolicy.MaxSessionDuration),
			Dir:             "captures",
			OnError:         guard.OnErrorSkip,
			Dedup:           string(dedup.ModeConsecutive),
			Backend:         BackendScreen,
		},
		Vision:    ModelConfig{Provider: "openai", Model: defaultModels["openai"].Vision},
		Embedding: ModelConfig{Provider: "openai", Model: defaultModels["openai"].Embedding},
		Chat: ChatConfig{
			ModelConfig: ModelConfig{Provider: "openai", Model: defaultModels["openai"].Chat},
			Temperature: 0.2,
		},
		Retrieval: RetrievalConfig{K: 3},
		Requests: RequestConfig{
			Timeout:     Duration(60 * time.Second),
			MaxAttempts: 3,
			Backoff:     Duration(2 * time.Second),
		},
	}
}

// DefaultPath is ~/.recall/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".recall", "config.yaml")
}

// Load reads a configuration file (JSON or YAML) over the defaults. An
// empty path loads DefaultPath when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); path == "" || err != nil {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}

	return cfg, nil
}

// Policy returns the guard policy for the capture loop.
func (c *Config) Policy() guard.Policy {
	return guard.Policy{
		Interval:           c.Capture.Interval.Std(),
		MaxSessionDuration: c.Capture.SessionDuration.Std(),
		ExcludedWindows:    c.Capture.ExcludedWindows,
		OnCaptureError:     c.Capture.OnError,
	}
}

// RetryPolicy returns the bounds applied to every external call.
func (c *Config) RetryPolicy() provider.RetryPolicy {
	return provider.RetryPolicy{
		Timeout:     c.Requests.Timeout.Std(),
		MaxAttempts: c.Requests.MaxAttempts,
		Backoff:     c.Requests.Backoff.Std(),
	}
}

// setters maps dotted keys to their field.
var setters = map[string]func(c *Config, v string) error{
	"capture.interval":         durationSetter(func(c *Config) *Duration { return &c.Capture.Interval }),
	"capture.session_duration": durationSetter(func(c *Config) *Duration { return &c.Capture.SessionDuration }),
	"capture.dir":              stringSetter(func(c *Config) *string { return &c.Capture.Dir }),
	"capture.on_error":         stringSetter(func(c *Config) *string { return &c.Capture.OnError }),
	"capture.dedup":            stringSetter(func(c *Config) *string { return &c.Capture.Dedup }),
	"capture.backend":          stringSetter(func(c *Config) *string { return &c.Capture.Backend }),
	"capture.plugin_path":      stringSetter(func(c *Config) *string { return &c.Capture.PluginPath }),
	"capture.excluded_windows": func(c *Config, v string) error {
		c.Capture.ExcludedWindows = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Capture.ExcludedWindows = append(c.Capture.ExcludedWindows, p)
			}
		}
		return nil
	},
	"vision.provider":    stringSetter(func(c *Config) *string { return &c.Vision.Provider }),
	"vision.model":       stringSetter(func(c *Config) *string { return &c.Vision.Model }),
	"vision.base_url":    stringSetter(func(c *Config) *string { return &c.Vision.BaseURL }),
	"embedding.provider": stringSetter(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.model":    stringSetter(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.base_url": stringSetter(func(c *Config) *string { return &c.Embedding.BaseURL }),
	"chat.provider":      stringSetter(func(c *Config) *string { return &c.Chat.Provider }),
	"chat.model":         stringSetter(func(c *Config) *string { return &c.Chat.Model }),
	"chat.base_url":      stringSetter(func(c *Config) *string { return &c.Chat.BaseURL }),
	"chat.temperature": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return err
		}
		c.Chat.Temperature = float32(f)
		return nil
	},
	"retrieval.k":           intSetter(func(c *Config) *int { return &c.Retrieval.K }),
	"requests.timeout":      durationSetter(func(c *Config) *Duration { return &c.Requests.Timeout }),
	"requests.max_attempts": intSetter(func(c *Config) *int { return &c.Requests.MaxAttempts }),
	"requests.backoff":      durationSetter(func(c *Config) *Duration { return &c.Requests.Backoff }),
}

func stringSetter(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationSetter(field func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		return field(c).UnmarshalText([]byte(v))
	}
}

// Keys lists every settable dotted key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a dotted key such as "capture.interval".
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// ApplyStored overlays values persisted with `recall config set`. lookup
// returns "" for unset keys.
func (c *Config) ApplyStored(lookup func(key string) (string, error)) error {
	for _, key := range Keys() {
		v, err := lookup(key)
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return err
		}
	}
	return nil
}

// envKeys maps hosted providers to their API key variable.
var envKeys = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// APIKey resolves the credential for a provider from stored configuration
// and then the environment. Local providers need none.
func APIKey(providerName string, lookup func(key string) (string, error)) (string, error) {
	env, hosted := envKeys[providerName]
	if !hosted {
		return "", nil
	}
	if lookup != nil {
		key, err := lookup(providerName + ".api_key")
		if err != nil {
			return "", err
		}
		if key != "" {
			return key, nil
		}
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: set %s or run `recall config set %s.api_key <key>`", ErrMissingCredential, env, providerName)
}
