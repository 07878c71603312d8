// Package qa answers questions about a completed session by retrieving
// the nearest summaries and asking a chat model to answer from them.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recall/internal/index"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/session"
)

// NoData is the answer given when nothing was indexed.
const NoData = "No data indexed."

// Defaults for retrieval and completion.
const (
	DefaultK           = 3
	DefaultTemperature = 0.2
)

const systemPrompt = `You answer questions about the user's recorded screen activity.
Use only the context below, which lists timestamped summaries of screenshots.
If the context does not contain the answer, say that you are not sure. Do not make anything up.

Context:
`

// Engine retrieves context and asks for a grounded answer. The embedder
// must be the one the index was built with.
type Engine struct {
	embedder    provider.Embedder
	chatter     provider.Chatter
	k           int
	temperature float32
}

// Option configures an Engine.
type Option func(*Engine)

// WithK sets how many summaries are retrieved.
func WithK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.k = k
		}
	}
}

// WithTemperature overrides the completion temperature.
func WithTemperature(t float32) Option {
	return func(e *Engine) { e.temperature = t }
}

func New(embedder provider.Embedder, chatter provider.Chatter, opts ...Option) *Engine {
	e := &Engine{
		embedder:    embedder,
		chatter:     chatter,
		k:           DefaultK,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve embeds the question and returns the nearest records.
func (e *Engine) Retrieve(ctx context.Context, idx *index.Index, snap session.Snapshot, question string) ([]index.Hit, error) {
	if idx == nil {
		return nil, nil
	}
	if idx.Len() != snap.Len() {
		return nil, fmt.Errorf("index covers %d records but session has %d; rebuild it", idx.Len(), snap.Len())
	}

	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for the question", len(vecs))
	}
	return idx.Search(vecs[0], e.k)
}

// Answer returns the model's answer to question. A nil index answers
// NoData without any external call.
func (e *Engine) Answer(ctx context.Context, idx *index.Index, snap session.Snapshot, question string) (string, error) {
	if idx == nil {
		return NoData, nil
	}
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question is empty")
	}

	hits, err := e.Retrieve(ctx, idx, snap, question)
	if err != nil {
		return "", err
	}

	resp, err := e.chatter.Chat(ctx, Messages(snap, hits, question), provider.ChatOptions{Temperature: e.temperature})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return resp.Content, nil
}

// Context joins the summaries of hits in search order.
func Context(snap session.Snapshot, hits []index.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = snap.At(h.Position).Summary
	}
	return strings.Join(parts, "\n")
}

// Messages builds the grounded conversation sent to the chat model.
func Messages(snap session.Snapshot, hits []index.Hit, question string) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt + Context(snap, hits)},
		{Role: provider.RoleUser, Content: question},
	}
}
