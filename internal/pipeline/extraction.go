package pipeline

import (
	"log/slog"

	"github.com/studyowl/studyowl-go/internal/chunker"
	"github.com/studyowl/studyowl-go/internal/extract"
	"github.com/studyowl/studyowl-go/internal/logging"
)

// runExtraction downloads the raw document, extracts its text, splits it into
// chunks, and moves the job to the embedding stage. It runs on a background
// worker with the extraction claim already held.
//
// Extraction failures are job-level fatal: no chunk state exists yet, so the
// whole job is marked failed.
func (c *Controller) runExtraction(documentID, sourceRef, mimeType string) {
	ctx := c.workerContext()
	log := logging.FromContext(ctx).With(slog.String("document_id", documentID))

	fail := func(stage string, err error) {
		log.Error("pipeline: extraction failed",
			slog.String("step", stage),
			slog.String("error", err.Error()),
		)
		if _, ferr := c.store.FailExtraction(ctx, documentID); ferr != nil {
			log.Error("pipeline: mark extraction failed", slog.String("error", ferr.Error()))
		}
		c.metrics.documentsTotal.WithLabelValues("failed").Inc()
	}

	data, err := c.blobs.Download(ctx, sourceRef)
	if err != nil {
		fail("download", err)
		return
	}

	text, err := extract.Text(data, mimeType)
	if err != nil {
		fail("extract", err)
		return
	}

	chunks := chunker.Chunk(text, c.cfg.ChunkSize, c.cfg.ChunkOverlap)

	if err := c.store.InsertChunks(ctx, documentID, chunks); err != nil {
		fail("insert chunks", err)
		return
	}

	if _, err := c.store.FinishExtraction(ctx, documentID); err != nil {
		fail("finish extraction", err)
		return
	}

	// The raw upload is no longer needed once the text is chunked. Removal
	// is best-effort: an orphaned blob is a cleanup concern, not a failure.
	if err := c.blobs.Remove(ctx, sourceRef); err != nil {
		log.Warn("pipeline: remove source blob", slog.String("error", err.Error()))
	}

	log.Info("pipeline: extraction finished", slog.Int("chunks", len(chunks)))
}
