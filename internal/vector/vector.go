// Package vector defines the interface for persisting and searching chunk
// embeddings, plus the Qdrant-backed implementation. The interface keeps the
// pipeline and retrieval layers independent of the concrete backend.
package vector

import "context"

// Point is a single embedded chunk as stored in the vector index.
type Point struct {
	// ID is the chunk's unique identifier (a UUID).
	ID string

	// DocumentID is the owning document's identifier.
	DocumentID string

	// Index is the chunk's ordinal position within its document.
	Index int

	// Content is the chunk's raw text.
	Content string

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// Store is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type Store interface {
	// Upsert stores or updates a batch of points with their pre-computed
	// embeddings. The embeddings slice is parallel to points.
	Upsert(ctx context.Context, points []Point, embeddings [][]float32) error

	// SearchByDocument returns the top-k most similar points scoped to a
	// single document.
	SearchByDocument(ctx context.Context, documentID string, queryEmbedding []float32, topK int) ([]Point, error)

	// DeleteByDocument removes every point belonging to the given document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Close releases any resources held by the store.
	Close() error
}
