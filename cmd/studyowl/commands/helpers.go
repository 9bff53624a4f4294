package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/studyowl/studyowl-go/internal/blob"
	"github.com/studyowl/studyowl-go/internal/embedder"
	"github.com/studyowl/studyowl-go/internal/pipeline"
	"github.com/studyowl/studyowl-go/internal/retrieval"
	"github.com/studyowl/studyowl-go/internal/store"
	"github.com/studyowl/studyowl-go/internal/vector"
)

// stack bundles the shared collaborators behind the serve, process, ask,
// quiz, and flashcards commands: the job store, the blob staging area, the
// embedder, the vector index, the pipeline controller, and the retriever.
type stack struct {
	Store      *store.SQLiteStore
	Blobs      *blob.FSStore
	Embedder   embedder.Embedder
	Vectors    *vector.QdrantStore
	Controller *pipeline.Controller
	Retriever  *retrieval.Retriever

	closers []func() error
}

// Close releases the stack's resources in reverse construction order.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// buildStack wires the processing stack from environment configuration.
// Metrics register against reg so serve can expose them on /metrics.
func buildStack(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*stack, error) {
	s := &stack{}

	dbPath := getEnvOrDefault("STUDYOWL_DB", defaultStatePath("studyowl.db"))
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dbPath, err)
	}
	s.Store = st
	s.closers = append(s.closers, st.Close)
	log.Info("job store opened", slog.String("path", dbPath))

	blobDir := getEnvOrDefault("BLOB_DIR", defaultStatePath("blobs"))
	blobs, err := blob.NewFSStore(blobDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open blob store at %s: %w", blobDir, err)
	}
	s.Blobs = blobs

	emb, err := embedder.NewFromEnv()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initialise embedder: %w", err)
	}
	s.Embedder = emb
	backend := embedder.Backend()
	dims := embedder.DefaultDimensions(backend)
	log.Info("embedder initialised", slog.String("provider", backend), slog.Int("dimensions", dims))

	vecs, err := vector.NewQdrantStore(ctx, &vector.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "studyowl-chunks"),
		VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	s.Vectors = vecs
	s.closers = append(s.closers, vecs.Close)

	maxWorkers := getEnvInt("PIPELINE_MAX_WORKERS", pipeline.DefaultMaxConcurrentWorkers)
	dispatcher, err := pipeline.NewAntsDispatcher(maxWorkers, log)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s.closers = append(s.closers, func() error { dispatcher.Release(); return nil })

	s.Controller = pipeline.New(st, blobs, emb, vecs, dispatcher, pipeline.Config{
		ChunkSize:            getEnvInt("PIPELINE_CHUNK_SIZE", 0),
		ChunkOverlap:         getEnvInt("PIPELINE_CHUNK_OVERLAP", 0),
		MaxConcurrentWorkers: maxWorkers,
		StaleClaimTTL:        getEnvDuration("PIPELINE_STALE_CLAIM_TTL", 0),
		ShortWaitMax:         getEnvDuration("PIPELINE_SHORT_WAIT_MAX", 0),
		MaxAttempts:          uint64(getEnvInt("PIPELINE_MAX_ATTEMPTS", 0)), //nolint:gosec // attempts are bounded
		Dimensions:           dims,
	}, reg, log)

	s.Retriever = retrieval.New(emb, vecs, st)

	return s, nil
}

// defaultStatePath resolves a path under ~/.studyowl, falling back to the
// working directory when the home directory cannot be determined.
func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".studyowl", name)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment variable
// (e.g. "2m", "5s"), or fallback if the variable is unset or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
