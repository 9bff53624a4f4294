// Package pipeline drives documents through extraction, chunking, and
// embedding. It has no scheduler of its own: every status poll doubles as a
// scheduler tick, advancing the document's job as far as the current state
// allows. Polls are idempotent and safe to issue concurrently — all stage and
// chunk transitions go through conditional updates in the store, so at most
// one poller wins any given claim.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/studyowl/studyowl-go/internal/blob"
	"github.com/studyowl/studyowl-go/internal/chunker"
	"github.com/studyowl/studyowl-go/internal/embedder"
	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/store"
	"github.com/studyowl/studyowl-go/internal/vector"
)

// Config tunes the pipeline. Zero values fall back to the defaults below.
type Config struct {
	// ChunkSize is the maximum chunk length in characters. Zero means the
	// default (1000).
	ChunkSize int

	// ChunkOverlap is the number of characters shared between adjacent
	// chunks. Zero means the default (200).
	ChunkOverlap int

	// MaxConcurrentWorkers bounds the number of chunks embedding at once.
	MaxConcurrentWorkers int

	// StaleClaimTTL is how long a chunk may sit in processing before a poll
	// reclaims it back to pending. Covers workers killed mid-claim.
	StaleClaimTTL time.Duration

	// ShortWaitMax is the longest provider-suggested rate-limit wait the
	// worker will honor in-process. Longer waits re-queue the chunk instead
	// of holding a worker slot hostage.
	ShortWaitMax time.Duration

	// MaxAttempts is the number of embedding attempts per claim before the
	// chunk is marked failed.
	MaxAttempts uint64

	// Dimensions is the expected embedding vector length.
	Dimensions int
}

// Pipeline defaults.
const (
	DefaultMaxConcurrentWorkers = 4
	DefaultStaleClaimTTL        = 2 * time.Minute
	DefaultShortWaitMax         = 5 * time.Second
	DefaultMaxAttempts          = 3
)

// withDefaults fills in zero-value fields. A zero chunk overlap means unset —
// the default window geometry is 1000/200.
func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultSize
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = chunker.DefaultOverlap
	}
	if c.MaxConcurrentWorkers <= 0 {
		c.MaxConcurrentWorkers = DefaultMaxConcurrentWorkers
	}
	if c.StaleClaimTTL <= 0 {
		c.StaleClaimTTL = DefaultStaleClaimTTL
	}
	if c.ShortWaitMax <= 0 {
		c.ShortWaitMax = DefaultShortWaitMax
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Status is the poll result returned to clients. Progress counts terminal
// chunks (completed or failed) against the total, so a document that finished
// with failures still reports 100.
type Status struct {
	// DocumentID identifies the polled document.
	DocumentID string `json:"documentId"`

	// Stage is the job's pipeline stage after this poll's transitions.
	Stage store.Stage `json:"stage"`

	// Chunks aggregates per-status chunk counts. All zeros before extraction
	// has produced any chunks.
	Chunks store.StatusCounts `json:"chunks"`

	// Progress is the percentage of chunks in a terminal status, 0–100.
	Progress float64 `json:"progress"`

	// Message is a human-readable summary of the current state.
	Message string `json:"message"`
}

// Finished reports whether the job has reached a terminal stage.
func (s *Status) Finished() bool {
	return s.Stage == store.StageCompleted || s.Stage == store.StageFailed
}

// Controller owns the pipeline's state machine. One instance serves all
// documents; per-document state lives entirely in the store.
type Controller struct {
	store      *store.SQLiteStore
	blobs      blob.Store
	embedder   embedder.Embedder
	vectors    vector.Store
	dispatcher Dispatcher
	cfg        Config
	metrics    *pipelineMetrics
	log        *slog.Logger
}

// New constructs a Controller. Metrics register against reg so tests can pass
// a private registry.
func New(st *store.SQLiteStore, blobs blob.Store, emb embedder.Embedder, vecs vector.Store, d Dispatcher, cfg Config, reg prometheus.Registerer, log *slog.Logger) *Controller {
	return &Controller{
		store:      st,
		blobs:      blobs,
		embedder:   emb,
		vectors:    vecs,
		dispatcher: d,
		cfg:        cfg.withDefaults(),
		metrics:    newPipelineMetrics(reg),
		log:        log,
	}
}

// Start registers a new document and queues it for extraction. The raw bytes
// must already be in the blob store under sourceRef.
func (c *Controller) Start(ctx context.Context, documentID, sourceRef, mimeType string) error {
	if err := c.store.CreateJob(ctx, documentID, sourceRef, mimeType); err != nil {
		return fmt.Errorf("pipeline: start %s: %w", documentID, err)
	}
	return nil
}

// Poll reports the document's current status and advances the pipeline one
// step where possible: claiming extraction, reaping stale chunk claims,
// dispatching embedding workers up to the concurrency limit, and finalizing
// the job once every chunk is terminal. Concurrent polls are safe — each
// transition is a conditional update and losers simply observe.
func (c *Controller) Poll(ctx context.Context, documentID string) (*Status, error) {
	job, err := c.store.GetJob(ctx, documentID)
	if err != nil {
		return nil, err
	}

	switch job.Stage {
	case store.StagePendingExtraction:
		return c.pollPendingExtraction(ctx, job)
	case store.StageExtracting:
		return c.statusFor(ctx, documentID, store.StageExtracting, "extracting text")
	case store.StagePendingEmbedding:
		return c.pollPendingEmbedding(ctx, job)
	case store.StageCompleted:
		return c.statusFor(ctx, documentID, store.StageCompleted, "processing complete")
	case store.StageFailed:
		return c.statusFor(ctx, documentID, store.StageFailed, "processing failed")
	default:
		return nil, fmt.Errorf("pipeline: document %s in unknown stage %q", documentID, job.Stage)
	}
}

// pollPendingExtraction tries to claim extraction and dispatch the extraction
// worker. Losing the claim race means another poll got there first; the job
// is reported as extracting either way.
func (c *Controller) pollPendingExtraction(ctx context.Context, job *store.Job) (*Status, error) {
	won, err := c.store.ClaimExtraction(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}
	if won {
		docID, sourceRef, mimeType := job.DocumentID, job.SourceRef, job.MimeType
		if err := c.dispatcher.Dispatch(func() {
			c.runExtraction(docID, sourceRef, mimeType)
		}); err != nil {
			// No worker free. Release the claim so a later poll retries.
			if _, relErr := c.store.ReleaseExtraction(ctx, docID); relErr != nil {
				c.log.Error("pipeline: release extraction claim",
					slog.String("document_id", docID),
					slog.String("error", relErr.Error()),
				)
			}
			return c.statusFor(ctx, docID, store.StagePendingExtraction, "waiting for an extraction worker")
		}
	}
	return c.statusFor(ctx, job.DocumentID, store.StageExtracting, "extracting text")
}

// pollPendingEmbedding reaps stale claims, finalizes the job when every chunk
// is terminal, and otherwise dispatches workers into the free slots.
func (c *Controller) pollPendingEmbedding(ctx context.Context, job *store.Job) (*Status, error) {
	log := logging.FromContext(ctx)
	docID := job.DocumentID

	reclaimed, err := c.store.ReclaimStale(ctx, docID, c.cfg.StaleClaimTTL)
	if err != nil {
		return nil, err
	}
	if reclaimed > 0 {
		c.metrics.chunksReclaimed.Add(float64(reclaimed))
		log.Warn("pipeline: reclaimed stale chunk claims",
			slog.String("document_id", docID),
			slog.Int64("count", reclaimed),
		)
	}

	counts, err := c.store.CountByStatus(ctx, docID)
	if err != nil {
		return nil, err
	}

	if counts.Finished() {
		failed := counts.Failed > 0
		won, err := c.store.FinishJob(ctx, docID, failed)
		if err != nil {
			return nil, err
		}
		stage := store.StageCompleted
		msg := "processing complete"
		if failed {
			stage = store.StageFailed
			msg = fmt.Sprintf("processing finished with %d failed chunks", counts.Failed)
		}
		if won {
			outcome := "completed"
			if failed {
				outcome = "failed"
			}
			c.metrics.documentsTotal.WithLabelValues(outcome).Inc()
		}
		p := progress(counts)
		if counts.Total == 0 {
			// A document that produced no chunks is still fully processed.
			p = 100
		}
		return &Status{
			DocumentID: docID,
			Stage:      stage,
			Chunks:     counts,
			Progress:   p,
			Message:    msg,
		}, nil
	}

	// Admission control: only dispatch into free worker slots. The count is
	// a snapshot, but the worker pool size enforces the hard bound.
	if available := c.cfg.MaxConcurrentWorkers - counts.Processing; available > 0 {
		ids, err := c.store.PendingChunkIDs(ctx, docID, available)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			id := id
			if err := c.dispatcher.Dispatch(func() { c.runChunk(docID, id) }); err != nil {
				// Pool saturated. The chunk is still pending; a later poll
				// will pick it up.
				break
			}
		}
	}

	return &Status{
		DocumentID: docID,
		Stage:      store.StagePendingEmbedding,
		Chunks:     counts,
		Progress:   progress(counts),
		Message:    fmt.Sprintf("embedding chunks: %d of %d done", counts.Completed+counts.Failed, counts.Total),
	}, nil
}

// ProcessChunk triggers one chunk worker directly, bypassing the poll
// scheduler. The worker claims the chunk itself, so a trigger for an
// already-claimed or finished chunk is an idempotent no-op.
func (c *Controller) ProcessChunk(documentID string, chunkID int64) error {
	return c.dispatcher.Dispatch(func() { c.runChunk(documentID, chunkID) })
}

// statusFor builds a Status with fresh chunk counts.
func (c *Controller) statusFor(ctx context.Context, documentID string, stage store.Stage, msg string) (*Status, error) {
	counts, err := c.store.CountByStatus(ctx, documentID)
	if err != nil {
		return nil, err
	}
	p := progress(counts)
	if counts.Total == 0 && (stage == store.StageCompleted || stage == store.StageFailed) {
		// A document that produced no chunks is still fully processed.
		p = 100
	}
	return &Status{
		DocumentID: documentID,
		Stage:      stage,
		Chunks:     counts,
		Progress:   p,
		Message:    msg,
	}, nil
}

// progress returns the terminal-chunk percentage, 0 when no chunks exist yet.
func progress(c store.StatusCounts) float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Completed+c.Failed) / float64(c.Total) * 100
}

// workerContext builds the detached context background workers run in. The
// poll request's context would cancel the work as soon as the response is
// written.
func (c *Controller) workerContext() context.Context {
	return logging.WithLogger(context.Background(), c.log)
}
