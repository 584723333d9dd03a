// Package embedding turns text into vectors for semantic retrieval.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ProviderName identifies an embedding backend.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderLocal  ProviderName = "local"
	ProviderHash   ProviderName = "hash"
)

var (
	// ErrEmptyResponse is returned when a backend answers without a vector.
	ErrEmptyResponse = errors.New("embedding: empty response")

	// ErrUnknownProvider is returned by New for an unrecognized provider name.
	ErrUnknownProvider = errors.New("embedding: unknown provider")
)

// Producer converts text into an embedding vector.
// Implementations must be safe for concurrent use and deterministic for the same text.
type Producer interface {
	Vectorize(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures a Producer.
type Config struct {
	Provider   ProviderName
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	RateLimit  int // requests per second, openai only
}

// New builds the Producer named by cfg.Provider.
func New(cfg Config) (Producer, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderLocal:
		return NewLocal(cfg)
	case ProviderHash, "":
		return NewHash(cfg.Dimensions), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}
