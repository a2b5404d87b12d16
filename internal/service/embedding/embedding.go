// Package embedding generates vector embeddings for diagnosis fingerprints.
//
// Each finalized recommendation stores an embedding of its diagnosis so
// later runs can count similar precedents. The Provider interface allows
// swapping embedding backends without changing consumers.
package embedding

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// Provider generates a vector embedding from text.
type Provider interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// NoopProvider returns zero vectors. Used when no embedding backend is
// reachable; precedent lookups treat zero-embedded rows as non-matching.
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider that returns zero vectors.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the embedding vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// Embed returns a zero vector.
func (p *NoopProvider) Embed(_ context.Context, _ string) (pgvector.Vector, error) {
	return pgvector.NewVector(make([]float32, p.dims)), nil
}
