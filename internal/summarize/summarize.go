// Package summarize turns an encoded capture into the formatted summary
// text stored in a session record.
package summarize

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/recall/internal/provider"
)

// Prompt is the fixed instruction sent with every capture.
const Prompt = "You are an analyst. In ≤ 20 words, describe the user's primary work task in this screenshot. " +
	"Then list application names and any visible filenames. " +
	"Use the format Analysis: --- \n Application names: --- \n Visible filenames: --- \n Open tabs: ---"

// Unavailable is recorded when the vision model cannot be reached.
const Unavailable = "Summary unavailable."

// Format prefixes text with the capture header line. Empty text is
// rendered as "None".
func Format(ts, text string) string {
	if text == "" {
		text = "None"
	}
	return Header(ts) + text
}

// Header is the line Format puts in front of every summary.
func Header(ts string) string {
	return "\n\U0001F5BC\uFE0F  " + ts + "\n"
}

// Body strips the header Format added for ts.
func Body(ts, summary string) string {
	return strings.TrimPrefix(summary, Header(ts))
}

// Summarizer asks a vision model to describe captures.
type Summarizer struct {
	describer provider.Describer
}

func New(d provider.Describer) *Summarizer {
	return &Summarizer{describer: d}
}

// Describe returns the model's raw description of a PNG capture.
func (s *Summarizer) Describe(ctx context.Context, png []byte) (string, error) {
	text, err := s.describer.Describe(ctx, Prompt, provider.PNG(png))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Summarize describes the capture and formats it under ts. On failure the
// placeholder summary is returned together with the error, so callers can
// log and keep going.
func (s *Summarizer) Summarize(ctx context.Context, ts string, png []byte) (string, error) {
	text, err := s.Describe(ctx, png)
	if err != nil {
		return Format(ts, Unavailable), err
	}
	return Format(ts, text), nil
}
