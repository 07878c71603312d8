package config

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recall/internal/dedup"
	"github.com/felixgeelhaar/recall/internal/guard"
)

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Err returns the errors joined into one error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid configuration: %v", r.Errors)
}

var (
	visionProviders    = []string{"openai", "ollama", "gemini", "anthropic", "stub"}
	embeddingProviders = []string{"openai", "ollama", "gemini", "stub"}
	chatProviders      = []string{"openai", "ollama", "gemini", "anthropic", "stub", "cli"}
)

// Validate checks the configuration for completeness and sanity.
func Validate(c *Config) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if v := guard.New(c.Policy()).Validate(); v != nil {
		fail("%s", v.Message)
	} else if c.Capture.Interval > c.Capture.SessionDuration {
		warn("Capture interval %s exceeds the session duration; only one capture will be taken", c.Capture.Interval.Std())
	}

	if c.Capture.Dir == "" {
		fail("Capture directory is required")
	}
	if _, err := dedup.New(dedup.Mode(c.Capture.Dedup)); err != nil {
		fail("%v", err)
	} else if c.Capture.Dedup == string(dedup.ModeHistory) {
		warn("History deduplication drops returns to earlier screens; the session will not show when you switched back")
	}

	switch c.Capture.Backend {
	case BackendScreen, BackendStub:
	case BackendPlugin:
		if c.Capture.PluginPath == "" {
			fail("Capture backend %q requires capture.plugin_path", BackendPlugin)
		}
	default:
		fail("Unknown capture backend: %q", c.Capture.Backend)
	}

	checkProvider := func(capability string, m ModelConfig, allowed []string) {
		if !contains(allowed, m.Provider) {
			fail("Provider %q cannot serve %s (use one of %v)", m.Provider, capability, allowed)
		}
	}
	checkProvider("vision", c.Vision, visionProviders)
	checkProvider("embedding", c.Embedding, embeddingProviders)
	checkProvider("chat", c.Chat.ModelConfig, chatProviders)

	checkModel := func(capability string, m ModelConfig) {
		if m.Provider == "stub" || m.Provider == "cli" {
			return
		}
		if owner := modelOwner(m.Model); owner != "" && owner != m.Provider {
			warn("%s model %q is a %s model but the provider is %q", capability, m.Model, owner, m.Provider)
		}
	}
	checkModel("Vision", c.Vision)
	checkModel("Embedding", c.Embedding)
	checkModel("Chat", c.Chat.ModelConfig)

	if c.Chat.Provider == "cli" && c.Chat.Model == "" {
		warn("No chat.model set for the cli provider; the first local agent found on PATH will be used")
	}
	if c.Chat.Temperature > 0.5 {
		warn("Chat temperature %.2f is high; answers will vary between identical questions", c.Chat.Temperature)
	}
	if c.Retrieval.K < 1 {
		fail("retrieval.k must be at least 1")
	}

	if c.Requests.MaxAttempts < 1 {
		fail("requests.max_attempts must be at least 1")
	}
	if c.Requests.Timeout <= 0 {
		warn("No request timeout set; a hung provider call will stall the session")
	}

	return res
}

var modelPrefixes = []struct{ prefix, provider string }{
	{"gpt-", "openai"},
	{"text-embedding-3", "openai"},
	{"text-embedding-ada", "openai"},
	{"gemini-", "gemini"},
	{"text-embedding-004", "gemini"},
	{"claude-", "anthropic"},
}

// modelOwner reports which hosted provider a model name plainly belongs to.
func modelOwner(model string) string {
	for _, p := range modelPrefixes {
		if strings.HasPrefix(model, p.prefix) {
			return p.provider
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
