package e2e

import (
	"context"
	"image/color"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/clock"
	"github.com/felixgeelhaar/recall/internal/dedup"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/index"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/qa"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/summarize"
)

// keywordEmbedder places texts on two axes so distances are known exactly.
type keywordEmbedder struct {
	calls int
}

func (k *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	k.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		out[i] = []float32{
			float32(strings.Count(t, "invoice")),
			float32(strings.Count(t, "kubernetes")),
		}
	}
	return out, nil
}

const (
	invoiceSummary = "Analysis: reconciling an invoice in a spreadsheet\nApplication names: Excel\nVisible filenames: march.xlsx\nOpen tabs: ---"
	docsSummary    = "Analysis: reading kubernetes deployment docs\nApplication names: Firefox\nVisible filenames: ---\nOpen tabs: kubernetes.io"
)

func TestPipeline_RetrievesClosestSummary(t *testing.T) {
	ctx := context.Background()

	stub := provider.NewStubProvider()
	stub.Descriptions = []string{invoiceSummary, docsSummary}
	stub.Answer = "You were reconciling the March invoice."

	backend := capture.NewScriptedBackend(
		capture.Solid("march.xlsx - Excel", color.RGBA{G: 128, A: 255}),
		capture.Solid("Deployments - Firefox", color.RGBA{R: 255, G: 120, A: 255}),
	)
	d, _ := dedup.New(dedup.ModeConsecutive)
	g := guard.New(guard.Policy{Interval: time.Minute, MaxSessionDuration: 2 * time.Minute})

	rt := runtime.New(nil, g, observe.New(io.Discard, false), backend, summarize.New(stub), d)
	rt.SetClock(clock.NewFake(time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)))

	snap, err := rt.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("Expected 2 records, got %d", snap.Len())
	}

	emb := &keywordEmbedder{}
	idx, err := index.Build(ctx, emb, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Expected a 2-vector index, got %d", idx.Len())
	}

	engine := qa.New(emb, stub, qa.WithK(1))
	answer, err := engine.Answer(ctx, idx, snap, "Which invoice was I working on?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer != stub.Answer {
		t.Errorf("Expected the completion verbatim, got %q", answer)
	}

	msgs := stub.LastMessages()
	if len(msgs) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, invoiceSummary) {
		t.Error("Expected the invoice summary in the context")
	}
	if strings.Contains(msgs[0].Content, docsSummary) {
		t.Error("Expected only the closest summary with k=1")
	}
	if msgs[1].Content != "Which invoice was I working on?" {
		t.Errorf("Unexpected user message %q", msgs[1].Content)
	}
	if emb.calls != 2 {
		t.Errorf("Expected one batch and one question embedding, got %d calls", emb.calls)
	}
}

func TestPipeline_EmptySession(t *testing.T) {
	ctx := context.Background()
	stub := provider.NewStubProvider()

	d, _ := dedup.New(dedup.ModeConsecutive)
	g := guard.New(guard.Policy{Interval: time.Minute, MaxSessionDuration: 2 * time.Minute})
	backend := capture.NewScriptedBackend(capture.Step{Err: capture.ErrNoActiveWindow})

	rt := runtime.New(nil, g, observe.New(io.Discard, false), backend, summarize.New(stub), d)
	rt.SetClock(clock.NewFake(time.Now()))

	snap, err := rt.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	idx, err := index.Build(ctx, stub, snap)
	if err != nil || idx != nil {
		t.Fatalf("Expected absent index, got %v, %v", idx, err)
	}
	answer, err := qa.New(stub, stub).Answer(ctx, idx, snap, "anything?")
	if err != nil || answer != qa.NoData {
		t.Errorf("Expected %q, got %q (%v)", qa.NoData, answer, err)
	}
	if dc, ec, cc := stub.Calls(); dc+ec+cc != 0 {
		t.Errorf("Expected no model calls, got %d/%d/%d", dc, ec, cc)
	}
}
