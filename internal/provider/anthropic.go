package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1/messages",
		client:  &http.Client{},
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Anthropic types for request/response
type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Usage      anthropicUsage          `json:"usage"`
	StopReason string                  `json:"stop_reason"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"` // For image blocks
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SetBaseURL allows overriding the API endpoint (useful for tests)
func (p *AnthropicProvider) SetBaseURL(url string) {
	p.baseURL = url
}

func (p *AnthropicProvider) Describe(ctx context.Context, prompt string, image Image) (string, error) {
	resp, err := p.send(ctx, anthropicRequest{
		Model:     p.model,
		MaxTokens: 1024,
		Messages: []anthropicMessage{
			{
				Role: RoleUser,
				Content: []anthropicContentBlock{
					{
						Type: "image",
						Source: &anthropicImageSource{
							Type:      "base64",
							MediaType: image.MIMEType,
							Data:      base64.StdEncoding.EncodeToString(image.Data),
						},
					},
					{Type: "text", Text: prompt},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: 4096,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	temp := opts.Temperature
	req.Temperature = &temp

	for _, m := range messages {
		if m.Role == RoleSystem {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    m.Role,
			Content: []anthropicContentBlock{{Type: "text", Text: m.Content}},
		})
	}

	return p.send(ctx, req)
}

func (p *AnthropicProvider) send(ctx context.Context, reqBody anthropicRequest) (*Response, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic api error (%d): %s", resp.StatusCode, string(body))
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if anthropicResp.Error != nil {
		return nil, fmt.Errorf("anthropic error: %s", anthropicResp.Error.Message)
	}

	var contentStr string
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			contentStr += block.Text
		}
	}

	return &Response{
		Content: contentStr,
		Usage: Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic embeddings: %w", ErrUnsupported)
}
