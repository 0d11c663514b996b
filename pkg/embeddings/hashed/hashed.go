// Package hashed implements a dependency-free Embedder using bag-of-words
// feature hashing. It trades semantic quality for determinism and zero
// infrastructure, which makes it the default for local operation and tests.
// Texts sharing vocabulary land near each other; identical text embeds
// identically.
package hashed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/papercomputeco/strata/pkg/embeddings"
)

// DefaultDimensions is the default vector width.
const DefaultDimensions = 256

// Embedder hashes lowercase word tokens into a fixed-width vector and
// L2-normalizes the result.
type Embedder struct {
	dimensions uint
}

// NewEmbedder creates a hashed embedder. A zero dimensions falls back to
// DefaultDimensions.
func NewEmbedder(dimensions uint) *Embedder {
	if dimensions == 0 {
		dimensions = DefaultDimensions
	}

	return &Embedder{dimensions: dimensions}
}

// Embed converts text into a normalized feature-hashed vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()[]{}")
		if token == "" {
			continue
		}

		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := sum % uint64(e.dimensions)

		// Use one spare hash bit as the sign so common tokens don't
		// bias every component positive.
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}

		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

// Dimensions returns the configured vector width.
func (e *Embedder) Dimensions() uint {
	return e.dimensions
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
