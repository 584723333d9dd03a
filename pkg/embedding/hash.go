package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultHashDimensions is the vector size of the hash producer.
const DefaultHashDimensions = 384

// Hash is an offline producer that derives a unit vector from an FNV hash of the text.
// It carries no semantics; it exists for development and tests.
type Hash struct {
	dim int
}

// NewHash creates a hash producer; dim <= 0 selects DefaultHashDimensions.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &Hash{dim: dim}
}

func (h *Hash) Vectorize(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := fnv.New32a()
	f.Write([]byte(text))
	seed := f.Sum32()

	vec := make([]float32, h.dim)
	var sumSquares float64
	for i := range vec {
		seed = seed*1664525 + 1013904223 // LCG
		vec[i] = float32(seed%1000)/1000.0 + 0.001
		sumSquares += float64(vec[i]) * float64(vec[i])
	}

	norm := float32(1 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= norm
	}
	return vec, nil
}
