package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/clock"
	"github.com/felixgeelhaar/recall/internal/dedup"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/summarize"
	"github.com/felixgeelhaar/recall/internal/ui"
)

// ArtifactType tags PNG captures in the artifacts table.
const ArtifactType = "capture"

// Runtime orchestrates the capture loop. It is the only writer of the
// session log it creates.
type Runtime struct {
	store      store.Storage
	guard      *guard.Guard
	observe    *observe.Observer
	backend    capture.Backend
	summarizer *summarize.Summarizer
	dedup      dedup.Deduplicator
	events     *EventBus
	clock      clock.Clock
	ui         ui.UI
	newID      func() string
	metadata   map[string]string
}

// New creates a runtime. s may be nil, in which case nothing is persisted.
func New(s store.Storage, g *guard.Guard, o *observe.Observer, b capture.Backend, sum *summarize.Summarizer, d dedup.Deduplicator) *Runtime {
	return &Runtime{
		store:      s,
		guard:      g,
		observe:    o,
		backend:    b,
		summarizer: sum,
		dedup:      d,
		events:     NewEventBus(),
		clock:      clock.Real(),
		ui:         ui.SilentUI{},
		newID:      func() string { return ulid.Make().String() },
	}
}

// SetUI routes progress output to u. A nil u keeps the silent default.
func (r *Runtime) SetUI(u ui.UI) {
	if u != nil {
		r.ui = u
	}
}

// SetClock replaces the wall clock used for timestamps and waits.
func (r *Runtime) SetClock(c clock.Clock) {
	if c != nil {
		r.clock = c
	}
}

// SetMetadata attaches key/values stored with the session row.
func (r *Runtime) SetMetadata(m map[string]string) {
	r.metadata = m
}

// Events returns the bus runtime events are published on.
func (r *Runtime) Events() *EventBus {
	return r.events
}

// Run captures until the session duration elapses or stop is raised, then
// freezes the log and returns its snapshot. Cancelling ctx aborts at once;
// the records gathered so far are still returned with the error, as they
// are when the capture error policy is abort.
func (r *Runtime) Run(ctx context.Context, stop *StopSignal) (session.Snapshot, error) {
	if stop == nil {
		stop = NewStopSignal()
	}
	if v := r.guard.Validate(); v != nil {
		return session.Snapshot{}, fmt.Errorf("invalid capture policy: %s", v.Message)
	}

	id := r.newID()
	log := session.NewLog(id)
	policy := r.guard.Policy()
	start := r.clock.Now()

	ctx, span := r.observe.StartSpan(ctx, "capture.session", "session", id)
	defer span.End()

	sess := &store.Session{
		ID:        id,
		CreatedAt: start,
		Status:    store.StatusCapturing,
		Metadata:  r.metadata,
	}
	if r.store != nil {
		if err := r.store.CreateSession(sess); err != nil {
			return session.Snapshot{}, fmt.Errorf("failed to create session: %w", err)
		}
	}

	r.observe.Log().Info().
		Str("sessionID", id).
		Str("interval", policy.Interval.String()).
		Str("duration", policy.MaxSessionDuration.String()).
		Msg("starting capture session")
	r.ui.UpdateStatus(fmt.Sprintf("Running capture loop for %d minutes …", int(policy.MaxSessionDuration.Minutes())))

	var runErr error
	reason := "duration reached"

loop:
	for iteration := 1; ; iteration++ {
		if stop.Stopped() {
			reason = "stopped"
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if v := r.guard.CheckElapsed(r.clock.Now().Sub(start)); v != nil {
			break
		}
		if v := r.guard.CheckIterations(iteration); v != nil {
			reason = "iteration limit reached"
			break
		}

		r.ui.UpdateIteration(iteration)
		iterStart := r.clock.Now()

		if err := r.iterate(ctx, log, iteration); err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			if r.guard.AbortOnError() {
				runErr = fmt.Errorf("iteration %d: %w", iteration, err)
				break
			}
		}

		wait := policy.Interval - r.clock.Now().Sub(iterStart)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-r.clock.After(wait):
		case <-stop.Done():
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		}
	}

	snap := log.Freeze()

	sess.Status = store.StatusComplete
	if runErr != nil {
		sess.Status = store.StatusAborted
		reason = runErr.Error()
	}
	if r.store != nil {
		if err := r.store.UpdateSession(sess); err != nil {
			r.observe.Log().Warn().Str("sessionID", id).Err(err).Msg("failed to update session status")
		}
	}

	r.observe.Log().Info().
		Str("sessionID", id).
		Int("records", snap.Len()).
		Str("reason", reason).
		Msg("capture session finished")
	r.ui.UpdateStatus("Loop finished")
	r.publish(Event{
		Type:      EventSessionComplete,
		SessionID: id,
		Err:       runErr,
		Data:      map[string]any{"records": snap.Len(), "reason": reason},
	})

	return snap, runErr
}

// iterate runs one capture. Failures are reported and returned; whether
// they end the session is up to the caller.
func (r *Runtime) iterate(ctx context.Context, log *session.Log, iteration int) error {
	ctx, span := r.observe.StartSpan(ctx, "capture.iteration", "session", log.ID(), "iteration", strconv.Itoa(iteration))
	defer span.End()

	iterLog := r.observe.Log().With().Int("iteration", iteration).Logger()

	fail := func(err error) error {
		iterLog.Warn().Err(err).Msg("capture failed, skipping iteration")
		r.ui.Log(fmt.Sprintf("Iteration %d: capture failed: %v", iteration, err))
		r.publish(Event{Type: EventCaptureFailed, SessionID: log.ID(), Iteration: iteration, Err: err})
		return err
	}

	win, err := r.backend.ActiveWindow(ctx)
	if err != nil {
		return fail(err)
	}
	if v := r.guard.CheckWindow(win.Title); v != nil {
		iterLog.Info().Str("window", win.Title).Msg("window excluded")
		r.publish(Event{Type: EventFrameExcluded, SessionID: log.ID(), Iteration: iteration, Data: map[string]any{"window": win.Title}})
		return nil
	}

	frame, err := capture.GrabWindow(ctx, r.backend, win)
	if err != nil {
		return fail(err)
	}

	now := r.clock.Now()
	ts := session.Stamp(now)
	fp := dedup.Fingerprint(frame.Encoded)
	if r.dedup.Duplicate(fp) {
		iterLog.Debug().Str("fingerprint", fp).Msg("duplicate frame dropped")
		r.publish(Event{Type: EventFrameDuplicate, SessionID: log.ID(), Iteration: iteration})
		return nil
	}
	r.publish(Event{Type: EventFrameCaptured, SessionID: log.ID(), Iteration: iteration, Data: map[string]any{"window": win.Title, "bytes": len(frame.Encoded)}})

	summary, err := r.summarizer.Summarize(ctx, ts, frame.Encoded)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		iterLog.Warn().Err(err).Msg("summary unavailable, recording placeholder")
		r.publish(Event{Type: EventSummaryFailed, SessionID: log.ID(), Iteration: iteration, Err: err})
	}

	rec := session.Record{Timestamp: ts, Fingerprint: fp, Summary: summary}
	if r.store != nil {
		rec.ArtifactPath = ts + ".png"
		art := &store.Artifact{
			ID:        log.ID() + "/" + ts,
			SessionID: log.ID(),
			Path:      rec.ArtifactPath,
			Type:      ArtifactType,
			CreatedAt: now,
			Digest:    fp,
		}
		if err := r.store.SaveArtifact(art, frame.Encoded); err != nil {
			iterLog.Warn().Err(err).Msg("failed to save capture artifact")
			rec.ArtifactPath = ""
		}
	}

	if err := log.Append(rec); err != nil {
		if errors.Is(err, session.ErrDuplicate) {
			return nil
		}
		return err
	}
	r.dedup.Retain(fp)

	if r.store != nil {
		if err := r.store.AppendRecord(log.ID(), log.Len()-1, rec); err != nil {
			iterLog.Warn().Err(err).Msg("failed to persist record")
		}
	}

	iterLog.Info().Str("timestamp", ts).Msg("record appended")
	r.ui.AddRecord(rec)
	r.publish(Event{Type: EventRecordAppended, SessionID: log.ID(), Iteration: iteration, Record: &rec})
	return nil
}

func (r *Runtime) publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.clock.Now()
	}
	r.events.Publish(e)
}
