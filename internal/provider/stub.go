package provider

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/zeebo/blake3"
)

// StubDimension is the vector size produced by StubProvider.Embed.
const StubDimension = 64

// StubProvider is a deterministic, offline provider for demos and tests.
// Embeddings are hashed bags of words, so texts sharing words land close
// together.
type StubProvider struct {
	// Descriptions are handed out in order by Describe; once exhausted a
	// generic description numbered by call is returned.
	Descriptions []string
	// Answer, when non-empty, is returned by every Chat call.
	Answer string
	// Errors forces an operation ("describe", "embed", "chat") to fail.
	Errors map[string]error

	mu           sync.Mutex
	describes    int
	embeds       int
	chats        int
	lastMessages []Message
}

func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

func (m *StubProvider) Name() string {
	return "stub"
}

func (m *StubProvider) Describe(ctx context.Context, prompt string, image Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describes++
	if err := m.Errors["describe"]; err != nil {
		return "", err
	}
	if i := m.describes - 1; i < len(m.Descriptions) {
		return m.Descriptions[i], nil
	}
	return fmt.Sprintf("Analysis: working in a terminal (capture %d)\nApplication names: Terminal\nVisible filenames: ---\nOpen tabs: ---", m.describes), nil
}

func (m *StubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.embeds++
	err := m.Errors["embed"]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = HashEmbedding(t)
	}
	return vecs, nil
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats++
	m.lastMessages = append([]Message(nil), messages...)
	if err := m.Errors["chat"]; err != nil {
		return nil, err
	}

	content := m.Answer
	if content == "" {
		content = "I'm not sure based on the recorded activity."
		if len(messages) > 0 {
			last := messages[len(messages)-1].Content
			content = fmt.Sprintf("Based on %d characters of recorded context: %s", len(last), firstLine(last))
		}
	}
	words := len(strings.Fields(content))
	return &Response{
		Content: content,
		Usage:   Usage{CompletionTokens: words, TotalTokens: words},
	}, nil
}

// Calls reports how many times each operation was invoked.
func (m *StubProvider) Calls() (describe, embed, chat int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.describes, m.embeds, m.chats
}

// LastMessages returns a copy of the conversation sent by the latest Chat.
func (m *StubProvider) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.lastMessages...)
}

// HashEmbedding maps text to a unit-length StubDimension vector by
// hashing each lower-cased word into a bucket.
func HashEmbedding(text string) []float32 {
	vec := make([]float32, StubDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		sum := blake3.Sum256([]byte(w))
		vec[binary.LittleEndian.Uint32(sum[:4])%StubDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
