package cli

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/clock"
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/dedup"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/index"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/qa"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/summarize"
	"github.com/felixgeelhaar/recall/internal/ui"
)

// Runner wires the pipeline from one configuration: capture into a
// frozen snapshot, then index it and answer questions over it.
type Runner struct {
	Observer *observe.Observer
	Store    store.Storage // nil disables persistence
	Config   *config.Config
	Vision   provider.Describer
	Embedder provider.Embedder
	Chatter  provider.Chatter
	Backend  capture.Backend
	UI       ui.UI
	Clock    clock.Clock // nil means the wall clock
	Metadata map[string]string
	// OnEvent, when set, receives every runtime event.
	OnEvent func(runtime.Event)
}

// Capture runs one session to completion.
func (r *Runner) Capture(ctx context.Context, stop *runtime.StopSignal) (session.Snapshot, error) {
	d, err := dedup.New(dedup.Mode(r.Config.Capture.Dedup))
	if err != nil {
		return session.Snapshot{}, err
	}

	rt := runtime.New(r.Store, guard.New(r.Config.Policy()), r.Observer, r.Backend, summarize.New(r.Vision), d)
	rt.SetUI(r.UI)
	rt.SetClock(r.Clock)
	rt.SetMetadata(r.Metadata)
	if r.OnEvent != nil {
		rt.Events().SubscribeAll(r.OnEvent)
	}

	return rt.Run(ctx, stop)
}

// Index embeds every summary of a completed snapshot. An empty snapshot
// yields a nil index.
func (r *Runner) Index(ctx context.Context, snap session.Snapshot) (*index.Index, error) {
	ctx, span := r.Observer.StartSpan(ctx, "index.build", "session", snap.ID())
	defer span.End()

	idx, err := index.Build(ctx, r.Embedder, snap)
	if err != nil {
		r.Observer.Log().Error().Err(err).Str("sessionID", snap.ID()).Msg("failed to build index")
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	r.Observer.Log().Info().
		Str("sessionID", snap.ID()).
		Int("vectors", idx.Len()).
		Int("dim", idx.Dim()).
		Msg("index built")
	return idx, nil
}

// Answer runs one question through the QA engine.
func (r *Runner) Answer(ctx context.Context, idx *index.Index, snap session.Snapshot, question string) (string, error) {
	ctx, span := r.Observer.StartSpan(ctx, "qa.answer", "session", snap.ID())
	defer span.End()

	engine := qa.New(r.Embedder, r.Chatter,
		qa.WithK(r.Config.Retrieval.K),
		qa.WithTemperature(r.Config.Chat.Temperature),
	)
	answer, err := engine.Answer(ctx, idx, snap, question)
	if err != nil {
		r.Observer.Log().Error().Err(err).Msg("failed to answer question")
		return "", err
	}
	return answer, nil
}
