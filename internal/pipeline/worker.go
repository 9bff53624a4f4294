package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/studyowl/studyowl-go/internal/embedder"
	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/vector"
)

// errRequeue signals that the chunk should go back to pending instead of
// failing: the backend asked for a longer wait than a worker slot is worth.
var errRequeue = errors.New("pipeline: rate limited with long wait, re-queueing chunk")

// runChunk claims one chunk, embeds it, and records the outcome. It runs on a
// background worker. The claim is taken here rather than at dispatch time so
// that a dispatch that never executes leaves the chunk safely pending.
//
// Outcomes:
//   - success: vector indexed, chunk completed with its embedding stored
//   - long rate-limit wait: chunk released back to pending for a later poll
//   - exhausted retries or malformed vector: chunk failed permanently
func (c *Controller) runChunk(documentID string, chunkID int64) {
	ctx := c.workerContext()
	log := logging.FromContext(ctx).With(
		slog.String("document_id", documentID),
		slog.Int64("chunk_id", chunkID),
	)

	won, err := c.store.ClaimChunk(ctx, chunkID)
	if err != nil {
		log.Error("pipeline: claim chunk", slog.String("error", err.Error()))
		return
	}
	if !won {
		// Another worker holds it, or it already finished. Nothing to do.
		return
	}

	c.metrics.workersInFlight.Inc()
	defer c.metrics.workersInFlight.Dec()

	chunk, err := c.store.GetChunk(ctx, chunkID)
	if err != nil {
		log.Error("pipeline: load claimed chunk", slog.String("error", err.Error()))
		c.release(ctx, log, chunkID)
		return
	}

	start := time.Now()
	vec, err := c.embedChunk(ctx, chunk.Content)
	c.metrics.embedDurationSeconds.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, errRequeue):
		log.Info("pipeline: re-queueing rate-limited chunk")
		c.metrics.chunksTotal.WithLabelValues("requeued").Inc()
		c.release(ctx, log, chunkID)
		return

	case err != nil:
		log.Error("pipeline: chunk embedding failed permanently", slog.String("error", err.Error()))
		c.metrics.chunksTotal.WithLabelValues("failed").Inc()
		if ferr := c.store.FailChunk(ctx, chunkID); ferr != nil {
			log.Error("pipeline: mark chunk failed", slog.String("error", ferr.Error()))
		}
		return
	}

	// Index first, then complete. The point ID is derived from the chunk so
	// a retried upsert overwrites rather than duplicates.
	point := vector.Point{
		ID:         chunkPointID(documentID, chunkID),
		DocumentID: documentID,
		Index:      chunk.Seq,
		Content:    chunk.Content,
	}
	if err := c.vectors.Upsert(ctx, []vector.Point{point}, [][]float32{vec}); err != nil {
		log.Error("pipeline: index chunk vector", slog.String("error", err.Error()))
		c.metrics.chunksTotal.WithLabelValues("requeued").Inc()
		c.release(ctx, log, chunkID)
		return
	}

	if err := c.store.CompleteChunk(ctx, chunkID, vec); err != nil {
		log.Error("pipeline: complete chunk", slog.String("error", err.Error()))
		return
	}
	c.metrics.chunksTotal.WithLabelValues("completed").Inc()
}

// embedChunk calls the embedding backend with retries. Transient failures
// back off exponentially for up to MaxAttempts tries; short provider-suggested
// waits are honored in-process. A wait longer than ShortWaitMax or a
// malformed vector aborts the retry loop immediately.
func (c *Controller) embedChunk(ctx context.Context, content string) ([]float32, error) {
	var vec []float32

	op := func() error {
		vecs, err := c.embedder.Embed(ctx, []string{content})
		if err != nil {
			var rl *embedder.RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > 0 {
				if rl.RetryAfter > c.cfg.ShortWaitMax {
					return backoff.Permanent(errRequeue)
				}
				// Honor the short suggested wait before the next attempt.
				select {
				case <-time.After(rl.RetryAfter):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return err
		}
		if len(vecs) != 1 {
			return backoff.Permanent(fmt.Errorf("pipeline: expected 1 embedding, got %d", len(vecs)))
		}
		if err := embedder.Validate(vecs[0], c.cfg.Dimensions); err != nil {
			// A malformed vector will not improve with retries.
			return backoff.Permanent(err)
		}
		vec = vecs[0]
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxAttempts-1),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return vec, nil
}

// release returns a claimed chunk to pending.
func (c *Controller) release(ctx context.Context, log *slog.Logger, chunkID int64) {
	if err := c.store.ReleaseChunk(ctx, chunkID); err != nil {
		log.Error("pipeline: release chunk claim", slog.String("error", err.Error()))
	}
}

// chunkPointID derives a stable UUID for the chunk's vector index point so
// retries overwrite the same point.
func chunkPointID(documentID string, chunkID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", documentID, chunkID))).String()
}
