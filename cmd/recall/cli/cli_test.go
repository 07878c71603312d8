package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/clock"
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/qa"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/store"
)

func newTestRunner(t *testing.T, b capture.Backend) (*Runner, *provider.StubProvider) {
	t.Helper()
	tmpDir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(tmpDir, "recall.db"), filepath.Join(tmpDir, "captures"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Capture.SessionDuration = config.Duration(3 * time.Minute)
	stub := provider.NewStubProvider()

	return &Runner{
		Observer: observe.New(io.Discard, false),
		Store:    s,
		Config:   cfg,
		Vision:   stub,
		Embedder: stub,
		Chatter:  stub,
		Backend:  b,
		Clock:    clock.NewFake(time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)),
	}, stub
}

func TestRunner(t *testing.T) {
	r, stub := newTestRunner(t, demoBackend())
	ctx := context.Background()

	var appended int
	r.OnEvent = func(e runtime.Event) {
		if e.Type == runtime.EventRecordAppended {
			appended++
		}
	}

	snap, err := r.Capture(ctx, nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if snap.Len() != 3 || appended != 3 {
		t.Fatalf("Expected 3 records, got %d (%d events)", snap.Len(), appended)
	}

	idx, err := r.Index(ctx, snap)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if idx.Len() != 3 || idx.Dim() != provider.StubDimension {
		t.Errorf("Unexpected index %d x %d", idx.Len(), idx.Dim())
	}

	answer, err := r.Answer(ctx, idx, snap, "What was I doing?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if !strings.HasPrefix(answer, "Based on") {
		t.Errorf("Unexpected answer %q", answer)
	}
	if _, embeds, chats := stub.Calls(); embeds != 2 || chats != 1 {
		t.Errorf("Expected 2 embed and 1 chat calls, got %d and %d", embeds, chats)
	}
}

func TestRunner_EmptySession(t *testing.T) {
	r, stub := newTestRunner(t, capture.NewScriptedBackend(capture.Step{Err: capture.ErrNoActiveWindow}))
	ctx := context.Background()

	snap, err := r.Capture(ctx, nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	idx, err := r.Index(ctx, snap)
	if err != nil || idx != nil {
		t.Fatalf("Expected nil index, got %v, %v", idx, err)
	}
	answer, _ := r.Answer(ctx, idx, snap, "anything?")
	if answer != qa.NoData {
		t.Errorf("Expected %q, got %q", qa.NoData, answer)
	}
	if d, e, c := stub.Calls(); d+e+c != 0 {
		t.Error("Expected no provider calls for an empty session")
	}
}

func TestRunner_InvalidDedup(t *testing.T) {
	r, _ := newTestRunner(t, demoBackend())
	r.Config.Capture.Dedup = "fuzzy"
	if _, err := r.Capture(context.Background(), nil); err == nil {
		t.Error("Expected error for unknown dedup mode")
	}
}

// blockingBackend holds the first Grab until release is closed.
type blockingBackend struct {
	capture.Backend
	grabbing chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (b *blockingBackend) Grab(ctx context.Context, r capture.Rect) (image.Image, error) {
	b.once.Do(func() { close(b.grabbing) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Backend.Grab(ctx, r)
}

func TestController_StartWaitsForCapture(t *testing.T) {
	b := &blockingBackend{Backend: demoBackend(), grabbing: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestRunner(t, b)
	c := &controller{runner: r, stop: runtime.NewStopSignal()}

	var records int
	var finishErr error
	finished := false
	wait := c.start(context.Background(), func(n int, err error) {
		records, finishErr, finished = n, err, true
	})

	select {
	case <-b.grabbing:
	case <-time.After(5 * time.Second):
		t.Fatal("capture never reached Grab")
	}

	c.Stop()
	returned := make(chan struct{})
	go func() {
		wait()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("wait returned while Grab was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(b.release)
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after Grab finished")
	}

	if !finished || finishErr != nil || records != 1 {
		t.Fatalf("finish = %v, %d records, %v", finished, records, finishErr)
	}
	sessions, err := r.Store.ListSessions(1)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions = %v, %v", sessions, err)
	}
	if sessions[0].Status != store.StatusComplete {
		t.Errorf("Expected session %s, got %s", store.StatusComplete, sessions[0].Status)
	}
	if _, err := c.Ask(context.Background(), "What was I doing?"); err != nil {
		t.Errorf("Ask after wait failed: %v", err)
	}
}

func TestCaptureOverrides_Provider(t *testing.T) {
	f := captureCmd.Flags()
	t.Cleanup(func() {
		for _, name := range []string{"provider", "chat-model"} {
			fl := f.Lookup(name)
			fl.Value.Set(fl.DefValue)
			fl.Changed = false
		}
	})
	if err := f.Set("provider", "ollama"); err != nil {
		t.Fatalf("Set provider: %v", err)
	}
	if err := f.Set("chat-model", "mistral"); err != nil {
		t.Fatalf("Set chat-model: %v", err)
	}

	cfg := config.Default()
	captureOverrides(captureCmd)(cfg)

	want := map[string]config.ModelConfig{
		"vision":    {Provider: "ollama", Model: "llama3.2-vision"},
		"embedding": {Provider: "ollama", Model: "nomic-embed-text"},
		"chat":      {Provider: "ollama", Model: "mistral"},
	}
	got := map[string]config.ModelConfig{
		"vision":    cfg.Vision,
		"embedding": cfg.Embedding,
		"chat":      cfg.Chat.ModelConfig,
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s = %+v, want %+v", k, got[k], w)
		}
	}
	if res := config.Validate(cfg); !res.Valid || len(res.Warnings) != 0 {
		t.Errorf("Expected clean validation, got errors %v warnings %v", res.Errors, res.Warnings)
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	stub := provider.NewStubProvider()
	none := func(string) (string, error) { return "", nil }

	t.Run("Stub", func(t *testing.T) {
		p, err := newProvider(cfg, config.ModelConfig{Provider: "stub"}, none, stub)
		if err != nil {
			t.Fatalf("newProvider failed: %v", err)
		}
		if _, ok := p.(*provider.Resilient); !ok || p.Name() != "stub" {
			t.Errorf("Expected resilient stub, got %T %s", p, p.Name())
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := newProvider(cfg, config.ModelConfig{Provider: "openai", Model: "gpt-4.1-nano"}, none, stub)
		if !errors.Is(err, config.ErrMissingCredential) {
			t.Errorf("Expected ErrMissingCredential, got %v", err)
		}
	})

	t.Run("StoredKey", func(t *testing.T) {
		lookup := func(k string) (string, error) {
			if k == "openai.api_key" {
				return "sk-stored", nil
			}
			return "", nil
		}
		p, err := newProvider(cfg, config.ModelConfig{Provider: "openai", Model: "gpt-4.1-nano"}, lookup, stub)
		if err != nil || p.Name() != "openai" {
			t.Errorf("Expected openai provider, got %v", err)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := newProvider(cfg, config.ModelConfig{Provider: "mystery"}, none, stub); err == nil {
			t.Error("Expected error for unknown provider")
		}
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestCLI_Commands(t *testing.T) {
	want := map[string]int{"capture": 0, "ask": 0, "sessions": 2, "config": 3}
	for _, cmd := range RootCmd.Commands() {
		n, ok := want[cmd.Name()]
		if !ok {
			continue
		}
		if len(cmd.Commands()) != n {
			t.Errorf("Expected %d subcommands for %s, got %d", n, cmd.Name(), len(cmd.Commands()))
		}
		delete(want, cmd.Name())
	}
	for name := range want {
		t.Errorf("%s command not found", name)
	}
}

func TestCLI_CaptureAskShow(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "shots")

	out, err := execute(t, "capture", "--home", home, "--dir", dir,
		"--backend", "stub", "--provider", "stub",
		"--interval", "1s", "--duration", "2s",
		"--ask", "What was I doing?")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if !strings.Contains(out, "A: Based on") {
		t.Errorf("Expected an answer, got:\n%s", out)
	}

	out, err = execute(t, "ask", "--home", home, "--provider", "stub", "which", "editor?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if strings.TrimSpace(out) == "" || out == qa.NoData+"\n" {
		t.Errorf("Expected an answer from the stored session, got %q", out)
	}

	out, err = execute(t, "sessions", "list", "--home", home)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "complete") {
		t.Errorf("Expected completed session in list:\n%s", out)
	}

	out, err = execute(t, "sessions", "show", "--home", home, "--html")
	if err != nil {
		t.Fatalf("sessions show failed: %v", err)
	}
	if !strings.Contains(out, "<h1>Session ") || !strings.Contains(out, ".png") {
		t.Errorf("Unexpected report:\n%s", out)
	}
}

func TestCLI_Config(t *testing.T) {
	home := t.TempDir()

	if _, err := execute(t, "config", "set", "--home", home, "capture.interval", "30s"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, err := execute(t, "config", "get", "--home", home, "capture.interval")
	if err != nil || strings.TrimSpace(out) != "30s" {
		t.Errorf("config get = %q, %v", out, err)
	}

	if _, err := execute(t, "config", "set", "--home", home, "capture.interval", "soon"); err == nil {
		t.Error("Expected invalid duration to be rejected")
	}
	if _, err := execute(t, "config", "set", "--home", home, "bogus.key", "x"); err == nil {
		t.Error("Expected unknown key to be rejected")
	}

	if _, err := execute(t, "config", "set", "--home", home, "openai.api_key", "sk-test-1234567890"); err != nil {
		t.Fatalf("config set api key failed: %v", err)
	}
	out, _ = execute(t, "config", "get", "--home", home, "openai.api_key")
	if strings.TrimSpace(out) != "sk-t...7890" {
		t.Errorf("Expected masked key, got %q", out)
	}

	s, err := store.NewSQLiteStore(filepath.Join(home, "recall.db"), filepath.Join(home, "captures"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()
	raw, _ := s.GetConfig("openai.api_key")
	if !credential.IsEncrypted(raw) {
		t.Errorf("Expected api key encrypted at rest, got %q", raw)
	}
}
