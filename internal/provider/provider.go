package provider

import (
	"context"
	"encoding/base64"
	"errors"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnsupported is returned when a provider cannot perform an operation,
// e.g. embeddings on Anthropic.
var ErrUnsupported = errors.New("operation not supported by provider")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Image is an encoded image payload sent to a vision model.
type Image struct {
	Data     []byte
	MIMEType string // e.g. "image/png"
}

// PNG wraps encoded PNG bytes.
func PNG(data []byte) Image {
	return Image{Data: data, MIMEType: "image/png"}
}

// DataURI returns the image as a base64 data URI.
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ChatOptions tunes a completion request.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
}

// Response represents the output from the model.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Describer produces a free-text description of an image.
type Describer interface {
	Describe(ctx context.Context, prompt string, image Image) (string, error)
}

// Embedder maps texts to fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chatter sends a role-tagged conversation and returns the reply.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error)
}

// Provider defines the interface for AI model interactions. A provider is
// bound to a single model; vision, embedding and chat usually use
// separate instances.
type Provider interface {
	Describer
	Embedder
	Chatter

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}
