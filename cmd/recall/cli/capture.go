package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/index"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/ui"
	"github.com/felixgeelhaar/recall/internal/ui/tui"
)

var (
	captureInterval time.Duration
	captureDuration time.Duration
	captureDir      string
	captureBackend  string
	captureDedup    string
	providerName    string
	visionModel     string
	embedModel      string
	chatModel       string
	questions       []string
	interactive     bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record a screen session, then answer questions about it",
	Long: `Capture the foreground window every interval until the session duration
elapses. Press Ctrl+C once to stop after the current capture, twice to abort.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd)
	},
}

func init() {
	RootCmd.AddCommand(captureCmd)
	f := captureCmd.Flags()
	f.DurationVar(&captureInterval, "interval", 0, "Time between captures (default 60s)")
	f.DurationVar(&captureDuration, "duration", 0, "Session length (default 8h)")
	f.StringVar(&captureDir, "dir", "", "Directory for PNG captures")
	f.StringVar(&captureBackend, "backend", "", "Capture backend (screen, plugin, stub)")
	f.StringVar(&captureDedup, "dedup", "", "Deduplication policy (consecutive, history)")
	f.StringVarP(&providerName, "provider", "p", "", "Provider for vision, embeddings and chat (openai, ollama, gemini, anthropic, stub)")
	f.StringVar(&visionModel, "vision-model", "", "Vision model")
	f.StringVar(&embedModel, "embed-model", "", "Embedding model")
	f.StringVar(&chatModel, "chat-model", "", "Chat model")
	f.StringArrayVar(&questions, "ask", nil, "Question to answer once capture completes (repeatable)")
	f.BoolVarP(&interactive, "interactive", "i", false, "Start interactive TUI")
}

func captureOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		f := cmd.Flags()
		if f.Changed("interval") {
			c.Capture.Interval = config.Duration(captureInterval)
		}
		if f.Changed("duration") {
			c.Capture.SessionDuration = config.Duration(captureDuration)
		}
		if f.Changed("dir") {
			c.Capture.Dir = captureDir
		}
		if f.Changed("backend") {
			c.Capture.Backend = captureBackend
		}
		if f.Changed("dedup") {
			c.Capture.Dedup = captureDedup
		}
		modelOverrides(cmd)(c)
		if f.Changed("provider") {
			c.Vision.Provider = providerName
			c.Vision.Model = config.DefaultModels(providerName).Vision
		}
		if f.Changed("vision-model") {
			c.Vision.Model = visionModel
		}
	}
}

// modelOverrides applies the flags shared by capture and ask. Switching
// provider resets each model to that provider's default unless a model
// flag names one.
func modelOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		f := cmd.Flags()
		if f.Changed("provider") {
			m := config.DefaultModels(providerName)
			c.Embedding.Provider = providerName
			c.Embedding.Model = m.Embedding
			c.Chat.Provider = providerName
			c.Chat.Model = m.Chat
		}
		if f.Changed("embed-model") {
			c.Embedding.Model = embedModel
		}
		if f.Changed("chat-model") {
			c.Chat.Model = chatModel
		}
	}
}

func runCapture(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	s, vault, err := getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var logOut io.Writer = cmd.ErrOrStderr()
	if interactive {
		logOut = io.Discard
	}
	obs := newObserver(logOut)
	defer obs.Close()

	cfg, res, err := loadConfig(vault, captureOverrides(cmd))
	for _, w := range res.Warnings {
		obs.Log().Warn().Msg(w)
	}
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(cfg.Capture.Dir)
	if err != nil {
		return err
	}
	if err := s.SetArtifactDir(dir); err != nil {
		return err
	}

	stub := provider.NewStubProvider()
	vision, err := newProvider(cfg, cfg.Vision, vault.Get, stub)
	if err != nil {
		return err
	}
	embedder, err := newProvider(cfg, cfg.Embedding, vault.Get, stub)
	if err != nil {
		return err
	}
	chatter, err := newProvider(cfg, cfg.Chat.ModelConfig, vault.Get, stub)
	if err != nil {
		return err
	}

	backend, release, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer release()

	r := &Runner{
		Observer: obs,
		Store:    s,
		Config:   cfg,
		Vision:   vision,
		Embedder: embedder,
		Chatter:  chatter,
		Backend:  backend,
		UI:       ui.NewPlain(out),
		Metadata: map[string]string{
			"vision":      modelLabel(cfg.Vision),
			"embedding":   modelLabel(cfg.Embedding),
			"chat":        modelLabel(cfg.Chat.ModelConfig),
			"interval":    cfg.Capture.Interval.Std().String(),
			"capture_dir": dir,
		},
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stop := runtime.NewStopSignal()

	if interactive && !ciMode {
		return runInteractive(ctx, r, stop)
	}

	handleInterrupts(ctx, stop, cancel, cmd.ErrOrStderr())

	snap, runErr := r.Capture(ctx, stop)
	if !snap.Complete() {
		return runErr
	}
	if runErr != nil {
		obs.Log().Error().Err(runErr).Int("records", snap.Len()).Msg("capture ended early")
		if errors.Is(runErr, context.Canceled) {
			return runErr
		}
	}
	fmt.Fprintf(out, "Session %s: %d records\n", snap.ID(), snap.Len())

	if len(questions) == 0 {
		return runErr
	}

	idx, err := r.Index(ctx, snap)
	if err != nil {
		return err
	}
	for _, q := range questions {
		answer, err := r.Answer(ctx, idx, snap, q)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nQ: %s\nA: %s\n", q, answer)
	}
	return runErr
}

// handleInterrupts turns the first interrupt into a graceful stop and the
// second into cancellation.
func handleInterrupts(ctx context.Context, stop *runtime.StopSignal, cancel context.CancelFunc, out io.Writer) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sig)
		select {
		case <-sig:
		case <-ctx.Done():
			return
		}
		stop.Stop()
		fmt.Fprintln(out, "Stopping after the current capture; interrupt again to abort.")

		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()
}

// runInteractive drives the session from the TUI. Questions are accepted
// once capture has completed and the index is built.
func runInteractive(ctx context.Context, r *Runner, stop *runtime.StopSignal) error {
	c := &controller{runner: r, stop: stop}
	policy := r.Config.Policy()
	maxIter := int(policy.MaxSessionDuration / policy.Interval)

	program := tea.NewProgram(tui.NewModel(ctx, "recall", maxIter, c), tea.WithAltScreen())
	t := tui.NewTUI(program)
	r.UI = t

	wait := c.start(ctx, t.Done)
	_, err := program.Run()
	wait()
	return err
}

type controller struct {
	runner *Runner
	stop   *runtime.StopSignal

	mu   sync.Mutex
	snap session.Snapshot
	idx  *index.Index
}

// start runs capture and then indexing off the UI goroutine and reports
// the outcome to finish. The returned func stops the session and blocks
// until that goroutine has returned.
func (c *controller) start(ctx context.Context, finish func(records int, err error)) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		snap, err := c.runner.Capture(ctx, c.stop)
		if snap.Complete() {
			idx, ierr := c.runner.Index(ctx, snap)
			c.ready(snap, idx)
			if err == nil {
				err = ierr
			}
		}
		finish(snap.Len(), err)
	}()
	return func() {
		c.stop.Stop()
		<-done
	}
}

func (c *controller) Stop() {
	c.stop.Stop()
}

func (c *controller) ready(snap session.Snapshot, idx *index.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap, c.idx = snap, idx
}

func (c *controller) Ask(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	snap, idx := c.snap, c.idx
	c.mu.Unlock()

	if !snap.Complete() {
		return "", errors.New("capture is still running")
	}
	return c.runner.Answer(ctx, idx, snap, question)
}
