package cli

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/plugin"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/store"
)

// stateDir holds the database, stored configuration and default captures.
func stateDir() string {
	if homeDir != "" {
		return homeDir
	}
	if env := os.Getenv("RECALL_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".recall")
}

func getStore() (*store.SQLiteStore, *credential.Vault, error) {
	dir := stateDir()
	s, err := store.NewSQLiteStore(
		filepath.Join(dir, "recall.db"),
		filepath.Join(dir, "captures"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init store: %w", err)
	}
	vault, err := credential.NewVault(s)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, vault, nil
}

func newObserver(out io.Writer) *observe.Observer {
	if ciMode {
		return observe.NewJSON(out, verbose)
	}
	return observe.New(out, verbose)
}

// loadConfig layers the configuration: defaults, then the config file,
// then values stored with `recall config set`, then command flags.
func loadConfig(vault *credential.Vault, overrides func(*config.Config)) (*config.Config, config.ValidationResult, error) {
	path := configPath
	if path == "" {
		if candidate := filepath.Join(stateDir(), "config.yaml"); fileExists(candidate) {
			path = candidate
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, config.ValidationResult{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyStored(vault.Get); err != nil {
		return nil, config.ValidationResult{}, fmt.Errorf("failed to apply stored configuration: %w", err)
	}
	if overrides != nil {
		overrides(cfg)
	}

	res := config.Validate(cfg)
	return cfg, res, res.Err()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newProvider builds the provider serving one capability, wrapped in the
// configured timeout and retry policy. stub is shared between capabilities.
func newProvider(cfg *config.Config, mc config.ModelConfig, lookup func(string) (string, error), stub *provider.StubProvider) (provider.Provider, error) {
	var (
		p   provider.Provider
		err error
	)

	switch mc.Provider {
	case "openai":
		var key string
		if key, err = config.APIKey(mc.Provider, lookup); err == nil {
			p, err = provider.NewOpenAIProvider(key, mc.BaseURL, mc.Model)
		}
	case "ollama":
		p, err = provider.NewOllamaProvider(mc.BaseURL, mc.Model)
	case "gemini":
		var key string
		if key, err = config.APIKey(mc.Provider, lookup); err == nil {
			p, err = provider.NewGeminiProvider(key, mc.Model)
		}
	case "anthropic":
		var key string
		if key, err = config.APIKey(mc.Provider, lookup); err == nil {
			var ap *provider.AnthropicProvider
			if ap, err = provider.NewAnthropicProvider(key, mc.Model); err == nil {
				if mc.BaseURL != "" {
					ap.SetBaseURL(mc.BaseURL)
				}
				p = ap
			}
		}
	case "cli":
		p, err = newCLIProvider(mc.Model)
	case "stub":
		p = stub
	default:
		err = fmt.Errorf("unknown provider %q", mc.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", mc.Provider, err)
	}

	return provider.NewResilient(p, cfg.RetryPolicy()), nil
}

// newCLIProvider uses the named binary, or the first local agent on PATH.
func newCLIProvider(binary string) (provider.Provider, error) {
	if binary != "" {
		return provider.NewCLIProvider(binary, []string{})
	}

	tools := []string{"claude", "codex", "gemini", "llm"}
	for _, t := range tools {
		path, err := exec.LookPath(t)
		if err == nil {
			return provider.NewCLIProvider(path, []string{})
		}
	}

	return nil, fmt.Errorf("no local CLI agents detected (tried claude, codex, gemini, llm)")
}

// newBackend opens the configured capture backend. The returned func
// releases it.
func newBackend(cfg *config.Config) (capture.Backend, func(), error) {
	switch cfg.Capture.Backend {
	case config.BackendPlugin:
		c, err := plugin.Open(cfg.Capture.PluginPath)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case config.BackendStub:
		return demoBackend(), func() {}, nil
	default:
		b, err := capture.NewScreenBackend()
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}
}

// demoBackend cycles through three synthetic windows and then stays on
// the last, so later frames are deduplicated.
func demoBackend() capture.Backend {
	return capture.NewScriptedBackend(
		capture.Solid("Terminal - go test ./...", color.RGBA{R: 30, G: 30, B: 30, A: 255}),
		capture.Solid("main.go - Visual Studio Code", color.RGBA{R: 0, G: 122, B: 204, A: 255}),
		capture.Solid("pkg.go.dev - Firefox", color.RGBA{R: 255, G: 149, B: 0, A: 255}),
	)
}

func modelLabel(mc config.ModelConfig) string {
	if mc.Model == "" {
		return mc.Provider
	}
	return mc.Provider + "/" + mc.Model
}
