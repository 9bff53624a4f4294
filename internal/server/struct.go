package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/studyowl/studyowl-go/internal/pipeline"
	"github.com/studyowl/studyowl-go/internal/store"
	"github.com/studyowl/studyowl-go/internal/studyaid"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil, a private registry is created.
	Registry *prometheus.Registry
}

// poller is the slice of the pipeline controller the document handlers use.
// *pipeline.Controller satisfies it; tests inject a fake.
type poller interface {
	Start(ctx context.Context, documentID, sourceRef, mimeType string) error
	Poll(ctx context.Context, documentID string) (*pipeline.Status, error)
	ProcessChunk(documentID string, chunkID int64) error
}

// generator is the slice of the study-aid generator the study handlers use.
// *studyaid.Generator satisfies it; tests inject a fake.
type generator interface {
	Chat(ctx context.Context, documentIDs []string, history []studyaid.Turn, message string) (*studyaid.ChatResponse, error)
	Quiz(ctx context.Context, documentIDs []string, questionCount int) (*studyaid.Quiz, error)
	Flashcards(ctx context.Context, documentIDs []string, count int) ([]studyaid.Flashcard, error)
}

// uploader stages raw document bytes before a job starts.
// *blob.FSStore satisfies it.
type uploader interface {
	Put(ctx context.Context, ref string, data []byte) error
}

// Server is the HTTP server that exposes the document pipeline and the
// study-aid generators.
type Server struct {
	// pipeline drives document processing; every status poll is a tick.
	pipeline poller
	// generator produces chat answers, quizzes, and flashcards.
	generator generator
	// blobs stages uploaded document bytes for the pipeline.
	blobs uploader
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// startRequest is the JSON body for POST /api/documents. Exactly one of
// Content or SourceReference must be set: Content uploads inline text, while
// SourceReference points at bytes already staged in the blob store.
type startRequest struct {
	// Content is the raw document text to upload inline.
	Content string `json:"content,omitempty"`
	// SourceReference locates pre-staged bytes in the blob store.
	SourceReference string `json:"sourceReference,omitempty"`
	// MimeType is the declared media type of the document.
	MimeType string `json:"mimeType"`
}

// startResponse is the JSON body returned by POST /api/documents.
type startResponse struct {
	// DocumentID identifies the accepted document for later polls.
	DocumentID string `json:"documentId"`
}

// statusResponse is the JSON body returned by GET /api/documents/{id}/status.
type statusResponse struct {
	// IsReady is true only when processing finished without failures.
	IsReady bool `json:"isReady"`
	// IsFinished is true once the job reached a terminal stage.
	IsFinished bool `json:"isFinished"`
	// HasFailed is true when the job reached the failed stage.
	HasFailed bool `json:"hasFailed"`
	// Progress is the percentage of chunks in a terminal status, 0–100.
	Progress float64 `json:"progress"`
	// Message is a human-readable summary of the current state.
	Message string `json:"message,omitempty"`
}

// processChunkRequest is the JSON body for POST /api/internal/process-chunk.
type processChunkRequest struct {
	// DocumentID is the chunk's owning document.
	DocumentID string `json:"documentId"`
	// ChunkID is the chunk to process.
	ChunkID int64 `json:"chunkId"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// DocumentIDs scopes retrieval to these documents.
	DocumentIDs []string `json:"documentIds"`
	// History is the prior conversation turns, oldest first.
	History []studyaid.Turn `json:"history,omitempty"`
	// Message is the user's question.
	Message string `json:"message"`
}

// quizRequest is the JSON body for POST /api/quiz.
type quizRequest struct {
	// DocumentIDs scopes generation to these documents.
	DocumentIDs []string `json:"documentIds"`
	// QuestionCount overrides the default quiz length when positive.
	QuestionCount int `json:"questionCount,omitempty"`
}

// flashcardsRequest is the JSON body for POST /api/flashcards.
type flashcardsRequest struct {
	// DocumentIDs scopes generation to these documents.
	DocumentIDs []string `json:"documentIds"`
	// Count overrides the default deck size when positive.
	Count int `json:"count,omitempty"`
}

// toStatusResponse maps a pipeline status onto the client-facing shape.
func toStatusResponse(st *pipeline.Status) statusResponse {
	finished := st.Finished()
	failed := st.Stage == store.StageFailed
	return statusResponse{
		IsReady:    finished && !failed,
		IsFinished: finished,
		HasFailed:  failed,
		Progress:   st.Progress,
		Message:    st.Message,
	}
}

// newDocumentID returns a fresh document identifier.
func newDocumentID() string {
	return uuid.NewString()
}
