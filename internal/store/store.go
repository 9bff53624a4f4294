// Package store provides the SQLite-backed persistence layer for processing
// jobs and document chunks. The chunks table doubles as the pipeline's
// synchronization point: every claim is an atomic conditional UPDATE, so the
// status column acts as a distributed mutex substitute shared by
// concurrently dispatched workers.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a job or chunk does not exist.
var ErrNotFound = errors.New("store: not found")

// Stage is the pipeline stage of a processing job. Stages only move forward;
// the sole regression in the system happens at chunk level (re-queue), never
// at job level.
type Stage string

const (
	// StagePendingExtraction means the job is created but no extraction
	// worker has claimed it yet.
	StagePendingExtraction Stage = "pending_extraction"
	// StageExtracting means an extraction worker is in flight.
	StageExtracting Stage = "extracting"
	// StagePendingEmbedding means chunks exist and embedding work remains.
	StagePendingEmbedding Stage = "pending_embedding"
	// StageCompleted is terminal: every chunk embedded successfully.
	StageCompleted Stage = "completed"
	// StageFailed is terminal: extraction failed or at least one chunk
	// failed permanently.
	StageFailed Stage = "failed"
)

// Terminal reports whether the stage is absorbing.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Status is the processing status of a single chunk.
type Status string

const (
	// StatusPending means the chunk awaits a worker.
	StatusPending Status = "pending"
	// StatusProcessing means exactly one worker holds the claim.
	StatusProcessing Status = "processing"
	// StatusCompleted means the embedding is persisted.
	StatusCompleted Status = "completed"
	// StatusFailed means the embedding attempt failed permanently.
	StatusFailed Status = "failed"
)

// Job is one record per document describing pipeline progress.
type Job struct {
	// DocumentID is the owning key, 1:1 with the conceptual document.
	DocumentID string
	// Stage is the current pipeline stage.
	Stage Stage
	// SourceRef is the opaque locator of the raw input in the blob store.
	SourceRef string
	// MimeType is the declared media type of the raw input.
	MimeType string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job last changed stage.
	UpdatedAt time.Time
}

// Chunk is one fragment of a document's text plus its embedding.
// Embedding is non-nil iff Status is StatusCompleted.
type Chunk struct {
	// ID is the store-assigned unique identifier.
	ID int64
	// DocumentID is the owning document.
	DocumentID string
	// Seq is the chunk's position within the document.
	Seq int
	// Content is the raw text of the chunk.
	Content string
	// Embedding is the L2-normalized vector, nil before completion.
	Embedding []float32
	// Status is the chunk's processing status.
	Status Status
}

// StatusCounts is the per-document aggregate used by the controller to
// compute progress and available worker slots.
type StatusCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Finished reports whether every chunk has reached a terminal status.
func (c StatusCounts) Finished() bool {
	return c.Completed+c.Failed == c.Total
}

// SQLiteStore persists jobs and chunks in a local SQLite database.
// It is safe for concurrent use.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent
	// claims — the claim semantics rely on UPDATE atomicity, not on parallelism.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS jobs (
    document_id  TEXT    PRIMARY KEY,
    stage        TEXT    NOT NULL CHECK(stage IN
                   ('pending_extraction','extracting','pending_embedding','completed','failed')),
    source_ref   TEXT    NOT NULL,
    mime_type    TEXT    NOT NULL,
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id  TEXT    NOT NULL,
    seq          INTEGER NOT NULL,
    content      TEXT    NOT NULL,
    embedding    BLOB,
    status       TEXT    NOT NULL CHECK(status IN ('pending','processing','completed','failed')),
    claimed_at   INTEGER,           -- Unix timestamp of the current claim, NULL unless processing
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_status
    ON chunks (document_id, status);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. Used by the readiness endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// CreateJob inserts a new job in StagePendingExtraction.
func (s *SQLiteStore) CreateJob(ctx context.Context, documentID, sourceRef, mimeType string) error {
	const q = `INSERT INTO jobs (document_id, stage, source_ref, mime_type, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, q, documentID, string(StagePendingExtraction), sourceRef, mimeType, now, now); err != nil {
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

// GetJob returns the job for documentID, or ErrNotFound.
func (s *SQLiteStore) GetJob(ctx context.Context, documentID string) (*Job, error) {
	const q = `SELECT document_id, stage, source_ref, mime_type, created_at, updated_at
	           FROM jobs WHERE document_id = ?`
	var j Job
	var stage string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, q, documentID).
		Scan(&j.DocumentID, &stage, &j.SourceRef, &j.MimeType, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	j.Stage = Stage(stage)
	j.CreatedAt = time.Unix(created, 0)
	j.UpdatedAt = time.Unix(updated, 0)
	return &j, nil
}

// transitionStage atomically moves a job from one stage to another.
// Returns false when the job was not in the expected stage — the caller lost
// the race (or the job does not exist), which is not an error by itself.
func (s *SQLiteStore) transitionStage(ctx context.Context, documentID string, from, to Stage) (bool, error) {
	const q = `UPDATE jobs SET stage = ?, updated_at = ? WHERE document_id = ? AND stage = ?`
	res, err := s.db.ExecContext(ctx, q, string(to), time.Now().Unix(), documentID, string(from))
	if err != nil {
		return false, fmt.Errorf("store: transition %s->%s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: transition rows affected: %w", err)
	}
	return n > 0, nil
}

// ClaimExtraction atomically claims the extraction unit of work
// (pending_extraction -> extracting). Exactly one concurrent caller wins.
func (s *SQLiteStore) ClaimExtraction(ctx context.Context, documentID string) (bool, error) {
	return s.transitionStage(ctx, documentID, StagePendingExtraction, StageExtracting)
}

// ReleaseExtraction reverts a claimed extraction (extracting ->
// pending_extraction). Used when the worker could not even be dispatched, so
// the job is not silently stuck in extracting.
func (s *SQLiteStore) ReleaseExtraction(ctx context.Context, documentID string) (bool, error) {
	return s.transitionStage(ctx, documentID, StageExtracting, StagePendingExtraction)
}

// FinishExtraction advances extracting -> pending_embedding.
func (s *SQLiteStore) FinishExtraction(ctx context.Context, documentID string) (bool, error) {
	return s.transitionStage(ctx, documentID, StageExtracting, StagePendingEmbedding)
}

// FailExtraction marks extracting -> failed.
func (s *SQLiteStore) FailExtraction(ctx context.Context, documentID string) (bool, error) {
	return s.transitionStage(ctx, documentID, StageExtracting, StageFailed)
}

// FinishJob atomically moves pending_embedding to the terminal stage.
// Idempotent under concurrent pollers: only the first caller's transition
// takes effect, later calls observe the job already terminal.
func (s *SQLiteStore) FinishJob(ctx context.Context, documentID string, failed bool) (bool, error) {
	to := StageCompleted
	if failed {
		to = StageFailed
	}
	return s.transitionStage(ctx, documentID, StagePendingEmbedding, to)
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

// InsertChunks bulk-inserts the document's chunks as pending, in order,
// within a single transaction.
func (s *SQLiteStore) InsertChunks(ctx context.Context, documentID string, contents []string) error {
	if len(contents) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert chunks begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const q = `INSERT INTO chunks (document_id, seq, content, status, updated_at)
	           VALUES (?, ?, ?, ?, ?)`
	now := time.Now().Unix()
	for i, content := range contents {
		if _, err := tx.ExecContext(ctx, q, documentID, i, content, string(StatusPending), now); err != nil {
			return fmt.Errorf("store: insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: insert chunks commit: %w", err)
	}
	return nil
}

// GetChunk returns a single chunk by ID, or ErrNotFound.
func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	const q = `SELECT id, document_id, seq, content, embedding, status FROM chunks WHERE id = ?`
	var c Chunk
	var status string
	var blob []byte
	err := s.db.QueryRowContext(ctx, q, id).
		Scan(&c.ID, &c.DocumentID, &c.Seq, &c.Content, &blob, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get chunk: %w", err)
	}
	c.Status = Status(status)
	if blob != nil {
		vec, decErr := decodeVector(blob)
		if decErr != nil {
			return nil, fmt.Errorf("store: get chunk %d: %w", id, decErr)
		}
		c.Embedding = vec
	}
	return &c, nil
}

// ClaimChunk atomically claims a pending chunk (pending -> processing) and
// stamps the claim time. Returns false when another worker already holds the
// chunk or it is terminal — a lost race, not an error.
func (s *SQLiteStore) ClaimChunk(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE chunks SET status = ?, claimed_at = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, q, string(StatusProcessing), now, now, id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("store: claim chunk: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim chunk rows affected: %w", err)
	}
	return n > 0, nil
}

// ReleaseChunk reverts a claimed chunk to pending (the re-queue path for
// long-wait rate limits). No failure is recorded — a later poll re-dispatches.
func (s *SQLiteStore) ReleaseChunk(ctx context.Context, id int64) error {
	const q = `UPDATE chunks SET status = ?, claimed_at = NULL, updated_at = ?
	           WHERE id = ? AND status = ?`
	if _, err := s.db.ExecContext(ctx, q, string(StatusPending), time.Now().Unix(), id, string(StatusProcessing)); err != nil {
		return fmt.Errorf("store: release chunk: %w", err)
	}
	return nil
}

// CompleteChunk persists the embedding and marks the chunk completed in one
// atomic update, preserving the embedding-iff-completed invariant.
func (s *SQLiteStore) CompleteChunk(ctx context.Context, id int64, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("store: complete chunk %d: empty embedding", id)
	}
	const q = `UPDATE chunks SET status = ?, embedding = ?, claimed_at = NULL, updated_at = ?
	           WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q, string(StatusCompleted), encodeVector(embedding), time.Now().Unix(), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("store: complete chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: complete chunk %d: not in processing state", id)
	}
	return nil
}

// FailChunk marks a claimed chunk as permanently failed. The embedding stays
// NULL so the embedding-iff-completed invariant holds.
func (s *SQLiteStore) FailChunk(ctx context.Context, id int64) error {
	const q = `UPDATE chunks SET status = ?, embedding = NULL, claimed_at = NULL, updated_at = ?
	           WHERE id = ? AND status = ?`
	if _, err := s.db.ExecContext(ctx, q, string(StatusFailed), time.Now().Unix(), id, string(StatusProcessing)); err != nil {
		return fmt.Errorf("store: fail chunk: %w", err)
	}
	return nil
}

// PendingChunkIDs returns up to limit pending chunk IDs for the document,
// in insertion order. The controller dispatches one worker per ID.
func (s *SQLiteStore) PendingChunkIDs(ctx context.Context, documentID string, limit int) ([]int64, error) {
	const q = `SELECT id FROM chunks WHERE document_id = ? AND status = ? ORDER BY seq LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, documentID, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: pending chunk ids scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: pending chunk ids rows: %w", err)
	}
	return ids, nil
}

// CountByStatus aggregates the document's chunk counts per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context, documentID string) (StatusCounts, error) {
	const q = `SELECT status, COUNT(*) FROM chunks WHERE document_id = ? GROUP BY status`
	rows, err := s.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("store: count by status: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("store: count by status scan: %w", err)
		}
		counts.Total += n
		switch Status(status) {
		case StatusPending:
			counts.Pending = n
		case StatusProcessing:
			counts.Processing = n
		case StatusCompleted:
			counts.Completed = n
		case StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, fmt.Errorf("store: count by status rows: %w", err)
	}
	return counts, nil
}

// CompletedChunks returns every completed chunk (content and decoded
// embedding) for the given documents, in document/seq order. This feeds the
// representative-sampling path, which clusters over the whole corpus.
func (s *SQLiteStore) CompletedChunks(ctx context.Context, documentIDs []string) ([]Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(documentIDs)), ",")
	q := fmt.Sprintf(`SELECT id, document_id, seq, content, embedding FROM chunks
	                  WHERE status = ? AND document_id IN (%s)
	                  ORDER BY document_id, seq`, placeholders)

	args := make([]any, 0, len(documentIDs)+1)
	args = append(args, string(StatusCompleted))
	for _, id := range documentIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: completed chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c := Chunk{Status: StatusCompleted}
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Seq, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("store: completed chunks scan: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: completed chunk %d: %w", c.ID, err)
		}
		c.Embedding = vec
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: completed chunks rows: %w", err)
	}
	return chunks, nil
}

// ReclaimStale reverts chunks stuck in processing for longer than ttl back to
// pending. This is the reaper that guarantees liveness after a crashed worker
// or a dispatch that never started; it runs opportunistically on every poll.
func (s *SQLiteStore) ReclaimStale(ctx context.Context, documentID string, ttl time.Duration) (int64, error) {
	const q = `UPDATE chunks SET status = ?, claimed_at = NULL, updated_at = ?
	           WHERE document_id = ? AND status = ? AND claimed_at < ?`
	cutoff := time.Now().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx, q, string(StatusPending), time.Now().Unix(), documentID, string(StatusProcessing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: reclaim stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reclaim stale rows affected: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Embedding codec
// ---------------------------------------------------------------------------

// encodeVector serializes a float32 vector as little-endian IEEE 754 bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 vector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
