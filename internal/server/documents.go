package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studyowl/studyowl-go/internal/logging"
	"github.com/studyowl/studyowl-go/internal/store"
)

// handleStartProcessing handles POST /api/documents. It stages the document
// bytes, registers the job, and returns 202 immediately — processing is
// driven by subsequent status polls.
func (s *Server) handleStartProcessing(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MimeType == "" {
		http.Error(w, "mimeType is required", http.StatusBadRequest)
		return
	}
	if req.Content == "" && req.SourceReference == "" {
		http.Error(w, "content or sourceReference is required", http.StatusBadRequest)
		return
	}
	if req.Content != "" && req.SourceReference != "" {
		http.Error(w, "content and sourceReference are mutually exclusive", http.StatusBadRequest)
		return
	}

	documentID := newDocumentID()

	sourceRef := req.SourceReference
	if req.Content != "" {
		sourceRef = documentID + ".upload"
		if err := s.blobs.Put(r.Context(), sourceRef, []byte(req.Content)); err != nil {
			log.Error("stage upload", slog.Any("error", err))
			http.Error(w, "failed to store document", http.StatusInternalServerError)
			return
		}
	}

	if err := s.pipeline.Start(r.Context(), documentID, sourceRef, req.MimeType); err != nil {
		log.Error("start processing", slog.Any("error", err))
		http.Error(w, "failed to start processing", http.StatusInternalServerError)
		return
	}

	log.Info("document accepted",
		slog.String("document_id", documentID),
		slog.String("mime_type", req.MimeType),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(startResponse{DocumentID: documentID}); err != nil {
		log.Error("start encode error", slog.Any("error", err))
	}
}

// handleStatus handles GET /api/documents/{id}/status. Each call doubles as a
// scheduler tick: the poll may claim extraction, dispatch embedding workers,
// or finalize the job before the status is reported.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	documentID := r.PathValue("id")
	if documentID == "" {
		http.Error(w, "document id is required", http.StatusBadRequest)
		return
	}

	st, err := s.pipeline.Poll(r.Context(), documentID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("poll", slog.String("document_id", documentID), slog.Any("error", err))
		http.Error(w, "failed to poll document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toStatusResponse(st)); err != nil {
		log.Error("status encode error", slog.Any("error", err))
	}
}

// handleProcessChunk handles POST /api/internal/process-chunk, the direct
// worker trigger. Triggering an already-claimed or finished chunk is a no-op,
// so the endpoint always returns 200 once the trigger is dispatched.
func (s *Server) handleProcessChunk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req processChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" || req.ChunkID <= 0 {
		http.Error(w, "documentId and chunkId are required", http.StatusBadRequest)
		return
	}

	if err := s.pipeline.ProcessChunk(req.DocumentID, req.ChunkID); err != nil {
		// Pool saturated — the chunk stays pending and a later poll retries.
		log.Warn("process-chunk trigger dropped",
			slog.String("document_id", req.DocumentID),
			slog.Int64("chunk_id", req.ChunkID),
			slog.Any("error", err),
		)
		http.Error(w, "no worker available", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}
