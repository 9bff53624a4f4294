// Package retrieval selects chunk context for the study-aid generators. It
// offers two strategies: semantic top-k search against the vector index for
// query-driven features (chat), and k-means representative sampling over the
// stored embeddings for whole-document features (quiz, flashcards).
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/studyowl/studyowl-go/internal/cluster"
	"github.com/studyowl/studyowl-go/internal/embedder"
	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/store"
	"github.com/studyowl/studyowl-go/internal/vector"
)

// searcher is the slice of vector.Store the retriever needs.
type searcher interface {
	SearchByDocument(ctx context.Context, documentID string, queryEmbedding []float32, topK int) ([]vector.Point, error)
}

// chunkSource is the slice of the chunk store the sampler needs.
type chunkSource interface {
	CompletedChunks(ctx context.Context, documentIDs []string) ([]store.Chunk, error)
}

// Retriever fetches relevant chunk context across one or more documents.
type Retriever struct {
	embedder embedder.Embedder
	vectors  searcher
	chunks   chunkSource
}

// New constructs a Retriever.
func New(emb embedder.Embedder, vectors searcher, chunks chunkSource) *Retriever {
	return &Retriever{embedder: emb, vectors: vectors, chunks: chunks}
}

// TopK embeds the query and fans similarity search out across the given
// documents, requesting ceil(matchCount/len(documentIDs)) matches from each.
// A failure against one document is logged and skipped rather than failing
// the whole retrieval; partial context still makes a useful answer. The
// merged results are sorted by score and truncated to matchCount.
func (r *Retriever) TopK(ctx context.Context, query string, documentIDs []string, matchCount int) ([]vector.Point, error) {
	log := logging.FromContext(ctx)

	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("retrieval: no documents to search")
	}
	if matchCount <= 0 {
		return nil, fmt.Errorf("retrieval: match count must be positive, got %d", matchCount)
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("retrieval: expected 1 query embedding, got %d", len(vecs))
	}

	perDoc := (matchCount + len(documentIDs) - 1) / len(documentIDs)

	var merged []vector.Point
	failures := 0
	for _, docID := range documentIDs {
		points, err := r.vectors.SearchByDocument(ctx, docID, vecs[0], perDoc)
		if err != nil {
			failures++
			log.Warn("retrieval: document search failed, skipping",
				slog.String("document_id", docID),
				slog.String("error", err.Error()),
			)
			continue
		}
		merged = append(merged, points...)
	}

	if failures == len(documentIDs) {
		return nil, fmt.Errorf("retrieval: search failed for all %d documents", failures)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > matchCount {
		merged = merged[:matchCount]
	}

	return merged, nil
}

// RepresentativeSample picks target chunks that together cover the topical
// spread of the given documents. It clusters the stored embeddings with
// k-means and draws an even quota from each cluster, so a quiz over a long
// document touches every section rather than just the opening pages.
//
// Chunks without embeddings never appear: only completed chunks are stored
// with vectors. Fewer than target chunks are returned when the documents
// simply have fewer completed chunks.
func (r *Retriever) RepresentativeSample(ctx context.Context, documentIDs []string, target int, rng *rand.Rand) ([]store.Chunk, error) {
	if target <= 0 {
		return nil, fmt.Errorf("retrieval: sample target must be positive, got %d", target)
	}

	chunks, err := r.chunks.CompletedChunks(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load completed chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("retrieval: no completed chunks for the requested documents")
	}
	if len(chunks) <= target {
		return chunks, nil
	}

	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = c.Embedding
	}

	k := cluster.AdaptiveK(len(chunks))
	assignments := cluster.KMeans(vectors, k, rng)
	picked := cluster.StratifiedSample(assignments, k, target)

	sample := make([]store.Chunk, 0, len(picked))
	for _, idx := range picked {
		sample = append(sample, chunks[idx])
	}
	return sample, nil
}
