package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/studyowl/studyowl-go/internal/logging"
)

// handleChat handles POST /api/chat. The answer is grounded in chunks
// retrieved for the question across the requested documents.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 {
		http.Error(w, "documentIds is required", http.StatusBadRequest)
		return
	}

	resp, err := s.generator.Chat(r.Context(), req.DocumentIDs, req.History, req.Message)
	s.metrics.observeGeneration("chat", err)
	if err != nil {
		log.Error("chat generation failed", slog.Any("error", err))
		http.Error(w, "failed to generate answer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("chat encode error", slog.Any("error", err))
	}
}

// handleQuiz handles POST /api/quiz. Representative sampling spreads the
// questions across the whole document set.
func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 {
		http.Error(w, "documentIds is required", http.StatusBadRequest)
		return
	}

	quiz, err := s.generator.Quiz(r.Context(), req.DocumentIDs, req.QuestionCount)
	s.metrics.observeGeneration("quiz", err)
	if err != nil {
		log.Error("quiz generation failed", slog.Any("error", err))
		http.Error(w, "failed to generate quiz", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(quiz); err != nil {
		log.Error("quiz encode error", slog.Any("error", err))
	}
}

// handleFlashcards handles POST /api/flashcards.
func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req flashcardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 {
		http.Error(w, "documentIds is required", http.StatusBadRequest)
		return
	}

	cards, err := s.generator.Flashcards(r.Context(), req.DocumentIDs, req.Count)
	s.metrics.observeGeneration("flashcards", err)
	if err != nil {
		log.Error("flashcard generation failed", slog.Any("error", err))
		http.Error(w, "failed to generate flashcards", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cards); err != nil {
		log.Error("flashcards encode error", slog.Any("error", err))
	}
}
