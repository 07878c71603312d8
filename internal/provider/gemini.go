package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-flash"
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Describe(ctx context.Context, prompt string, image Image) (string, error) {
	geminiModel := p.client.GenerativeModel(p.model)

	format := strings.TrimPrefix(image.MIMEType, "image/")
	resp, err := geminiModel.GenerateContent(ctx, genai.Text(prompt), genai.ImageData(format, image.Data))
	if err != nil {
		return "", fmt.Errorf("gemini vision request failed: %w", err)
	}
	text, err := candidateText(resp)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	geminiModel := p.client.GenerativeModel(p.model)
	geminiModel.SetTemperature(opts.Temperature)
	if opts.MaxTokens > 0 {
		geminiModel.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	// Gemini has no system role in chat history.
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			geminiModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
			continue
		}
		rest = append(rest, m)
	}
	if len(rest) == 0 {
		return nil, errors.New("no user message to send")
	}

	cs := geminiModel.StartChat()

	var history []*genai.Content
	for _, m := range rest[:len(rest)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	cs.History = history

	lastMsg := rest[len(rest)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(lastMsg.Content))
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	text, err := candidateText(resp)
	if err != nil {
		return nil, err
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Response{
		Content: text,
		Usage:   usage,
	}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := p.client.EmbeddingModel(p.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings failed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(res.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if v, ok := part.(genai.Text); ok {
			sb.WriteString(string(v))
		}
	}
	return sb.String(), nil
}
