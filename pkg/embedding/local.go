package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultLocalHost  = "http://localhost:11434/v1"
	DefaultLocalModel = "nomic-embed-text"
)

// Local produces embeddings from an OpenAI-compatible server such as Ollama or vLLM.
type Local struct {
	embedder embeddings.Embedder
}

// NewLocal creates a producer for cfg.BaseURL. No token is sent unless cfg.APIKey is set.
func NewLocal(cfg Config) (*Local, error) {
	host := cfg.BaseURL
	if host == "" {
		host = DefaultLocalHost
	}
	if !strings.HasSuffix(host, "/v1") {
		host = strings.TrimSuffix(host, "/") + "/v1"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultLocalModel
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("local embeddings client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("local embedder: %w", err)
	}
	return &Local{embedder: embedder}, nil
}

func (p *Local) Vectorize(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("local embeddings: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyResponse
	}
	return vec, nil
}

var (
	_ Producer = (*Local)(nil)
	_ Producer = (*OpenAI)(nil)
	_ Producer = (*Hash)(nil)
)
