package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider connects to baseURL, falling back to OLLAMA_HOST and
// then the local default.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.2-vision"
	}

	if baseURL == "" {
		baseURL = "http://localhost:11434"
		if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
			baseURL = envURL
		}
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	client := api.NewClient(uri, http.DefaultClient)

	return &OllamaProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Describe(ctx context.Context, prompt string, image Image) (string, error) {
	resp, err := p.chat(ctx, []api.Message{
		{
			Role:    RoleUser,
			Content: prompt,
			Images:  []api.ImageData{image.Data},
		},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("ollama vision request failed: %w", err)
	}
	return resp.Content, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	var apiMsgs []api.Message
	for _, m := range messages {
		apiMsgs = append(apiMsgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	resp, err := p.chat(ctx, apiMsgs, options)
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	return resp, nil
}

func (p *OllamaProvider) chat(ctx context.Context, msgs []api.Message, options map[string]any) (*Response, error) {
	req := &api.ChatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   new(bool), // false
		Options:  options,
	}

	var respContent string
	var usage Usage

	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		respContent += resp.Message.Content
		if resp.Done {
			usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.EvalCount + resp.PromptEvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Response{Content: respContent, Usage: usage}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}
