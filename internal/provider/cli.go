package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local agent binary. It only answers chat
// requests; the prompt is the flattened conversation.
type CLIProvider struct {
	binaryPath string
	args       []string
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if m.Role == RoleSystem {
			sb.WriteString(m.Content)
			continue
		}
		sb.WriteString(m.Role + ": " + m.Content)
	}

	fullArgs := append(append([]string{}, p.args...), sb.String())

	execCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...)

	output, err := cmd.CombinedOutput()
	result := strings.TrimSpace(string(output))

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("cli agent timed out: %w", err)
		}
		return nil, fmt.Errorf("cli agent failed: %w\nOutput: %s", err, result)
	}

	return &Response{
		Content: result,
		Usage: Usage{
			TotalTokens: len(strings.Fields(result)),
		},
	}, nil
}

func (p *CLIProvider) Describe(ctx context.Context, prompt string, image Image) (string, error) {
	return "", fmt.Errorf("cli vision: %w", ErrUnsupported)
}

func (p *CLIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("cli embeddings: %w", ErrUnsupported)
}
