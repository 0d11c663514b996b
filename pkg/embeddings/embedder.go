// Package embeddings
package embeddings

import "context"

// Embedder provides text embedding capabilities for the semantic tier.
// The concrete embedding algorithm is a provider choice; the system only
// requires that identical text embeds to identical vectors of a fixed
// dimension.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the width of produced vectors.
	Dimensions() uint

	// Close releases any resources held by the embedder.
	Close() error
}
