package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/recall/internal/provider"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"WithText", "Analysis: coding", "\n\U0001F5BC\uFE0F  2025-01-02T03:04:05Z\nAnalysis: coding"},
		{"Empty", "", "\n\U0001F5BC\uFE0F  2025-01-02T03:04:05Z\nNone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format("2025-01-02T03:04:05Z", tt.text); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBody(t *testing.T) {
	ts := "2025-01-02T03:04:05Z"
	if got := Body(ts, Format(ts, "Analysis: coding")); got != "Analysis: coding" {
		t.Errorf("Body() = %q", got)
	}
	if got := Body("2025-01-02T03:04:06Z", Format(ts, "x")); got != Format(ts, "x") {
		t.Error("Expected a foreign header to be left intact")
	}
}

type recordingDescriber struct {
	prompt string
	image  provider.Image
	reply  string
	err    error
}

func (r *recordingDescriber) Describe(ctx context.Context, prompt string, img provider.Image) (string, error) {
	r.prompt = prompt
	r.image = img
	return r.reply, r.err
}

func TestSummarizer_Summarize(t *testing.T) {
	d := &recordingDescriber{reply: "  Analysis: reviewing a PR  \n"}
	s := New(d)

	got, err := s.Summarize(context.Background(), "2025-01-02T03:04:05Z", []byte("png"))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.HasPrefix(got, "\n\U0001F5BC\uFE0F  2025-01-02T03:04:05Z\n") {
		t.Errorf("Expected header line, got %q", got)
	}
	if !strings.HasSuffix(got, "Analysis: reviewing a PR") {
		t.Errorf("Expected trimmed description, got %q", got)
	}
	if d.prompt != Prompt {
		t.Error("Expected the fixed instruction")
	}
	if d.image.MIMEType != "image/png" || string(d.image.Data) != "png" {
		t.Errorf("Unexpected image payload %+v", d.image)
	}
}

func TestSummarizer_Placeholder(t *testing.T) {
	cause := errors.New("timeout")
	s := New(&recordingDescriber{err: cause})

	got, err := s.Summarize(context.Background(), "2025-01-02T03:04:05Z", nil)
	if !errors.Is(err, cause) {
		t.Errorf("Expected cause, got %v", err)
	}
	if got != Format("2025-01-02T03:04:05Z", Unavailable) {
		t.Errorf("Expected placeholder, got %q", got)
	}
}

func TestSummarizer_EmptyDescription(t *testing.T) {
	s := New(&recordingDescriber{reply: "   "})
	got, _ := s.Summarize(context.Background(), "t", nil)
	if !strings.HasSuffix(got, "\nNone") {
		t.Errorf("Expected None, got %q", got)
	}
}
