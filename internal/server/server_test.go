package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/studyowl/studyowl-go/internal/pipeline"
	"github.com/studyowl/studyowl-go/internal/store"
	"github.com/studyowl/studyowl-go/internal/studyaid"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakePoller is a test double for the pipeline controller.
type fakePoller struct {
	started      []string
	startErr     error
	status       *pipeline.Status
	pollErr      error
	processed    []int64
	processErr   error
	lastMimeType string
}

func (f *fakePoller) Start(_ context.Context, documentID, _, mimeType string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, documentID)
	f.lastMimeType = mimeType
	return nil
}

func (f *fakePoller) Poll(context.Context, string) (*pipeline.Status, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.status, nil
}

func (f *fakePoller) ProcessChunk(_ string, chunkID int64) error {
	if f.processErr != nil {
		return f.processErr
	}
	f.processed = append(f.processed, chunkID)
	return nil
}

// fakeGenerator is a test double for the study-aid generator.
type fakeGenerator struct {
	chat  *studyaid.ChatResponse
	quiz  *studyaid.Quiz
	cards []studyaid.Flashcard
	err   error
}

func (f *fakeGenerator) Chat(context.Context, []string, []studyaid.Turn, string) (*studyaid.ChatResponse, error) {
	return f.chat, f.err
}

func (f *fakeGenerator) Quiz(context.Context, []string, int) (*studyaid.Quiz, error) {
	return f.quiz, f.err
}

func (f *fakeGenerator) Flashcards(context.Context, []string, int) ([]studyaid.Flashcard, error) {
	return f.cards, f.err
}

// fakeUploader captures staged blobs in memory.
type fakeUploader struct {
	blobs map[string][]byte
	err   error
}

func (f *fakeUploader) Put(_ context.Context, ref string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.blobs == nil {
		f.blobs = make(map[string][]byte)
	}
	f.blobs[ref] = data
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

func newTestServerWith(p *fakePoller, g *fakeGenerator, u *fakeUploader) *Server {
	s, err := New(p, g, u, &Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		panic(err)
	}
	return s
}

// newTestServer builds a server with benign fakes for tests that only touch
// operational endpoints.
func newTestServer() *Server {
	return newTestServerWith(&fakePoller{}, &fakeGenerator{}, &fakeUploader{})
}

// doJSON routes a request through the full middleware chain.
func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/documents
// ---------------------------------------------------------------------------

func TestStartProcessing_AcceptsInlineContent(t *testing.T) {
	t.Parallel()

	p := &fakePoller{}
	u := &fakeUploader{}
	s := newTestServerWith(p, &fakeGenerator{}, u)

	w := doJSON(s, http.MethodPost, "/api/documents",
		`{"content":"mitosis notes","mimeType":"text/plain"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp startResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DocumentID == "" {
		t.Errorf("documentId must be set")
	}
	if len(p.started) != 1 || p.started[0] != resp.DocumentID {
		t.Errorf("pipeline start mismatch: %v vs %s", p.started, resp.DocumentID)
	}
	if p.lastMimeType != "text/plain" {
		t.Errorf("mime type = %q", p.lastMimeType)
	}
	if len(u.blobs) != 1 {
		t.Errorf("inline content must be staged in the blob store")
	}
}

func TestStartProcessing_AcceptsSourceReference(t *testing.T) {
	t.Parallel()

	p := &fakePoller{}
	u := &fakeUploader{}
	s := newTestServerWith(p, &fakeGenerator{}, u)

	w := doJSON(s, http.MethodPost, "/api/documents",
		`{"sourceReference":"uploads/notes.txt","mimeType":"text/plain"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(u.blobs) != 0 {
		t.Errorf("pre-staged references must not write to the blob store")
	}
}

func TestStartProcessing_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"missing mime type", `{"content":"x"}`},
		{"missing content and reference", `{"mimeType":"text/plain"}`},
		{"both content and reference", `{"content":"x","sourceReference":"y","mimeType":"text/plain"}`},
		{"malformed json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			w := doJSON(s, http.MethodPost, "/api/documents", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// GET /api/documents/{id}/status
// ---------------------------------------------------------------------------

func TestStatus_CompletedDocumentIsReady(t *testing.T) {
	t.Parallel()

	p := &fakePoller{status: &pipeline.Status{
		DocumentID: "doc-1",
		Stage:      store.StageCompleted,
		Progress:   100,
		Message:    "processing complete",
	}}
	s := newTestServerWith(p, &fakeGenerator{}, &fakeUploader{})

	w := doJSON(s, http.MethodGet, "/api/documents/doc-1/status", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsReady || !resp.IsFinished || resp.HasFailed {
		t.Errorf("completed document flags wrong: %+v", resp)
	}
	if resp.Progress != 100 {
		t.Errorf("progress = %v", resp.Progress)
	}
}

func TestStatus_FailedDocumentIsNotReady(t *testing.T) {
	t.Parallel()

	p := &fakePoller{status: &pipeline.Status{
		DocumentID: "doc-1",
		Stage:      store.StageFailed,
		Progress:   100,
	}}
	s := newTestServerWith(p, &fakeGenerator{}, &fakeUploader{})

	w := doJSON(s, http.MethodGet, "/api/documents/doc-1/status", "")

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IsReady {
		t.Errorf("failed document must not be ready")
	}
	if !resp.IsFinished || !resp.HasFailed {
		t.Errorf("failed document flags wrong: %+v", resp)
	}
}

func TestStatus_InProgress(t *testing.T) {
	t.Parallel()

	p := &fakePoller{status: &pipeline.Status{
		DocumentID: "doc-1",
		Stage:      store.StagePendingEmbedding,
		Progress:   50,
	}}
	s := newTestServerWith(p, &fakeGenerator{}, &fakeUploader{})

	w := doJSON(s, http.MethodGet, "/api/documents/doc-1/status", "")

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IsReady || resp.IsFinished || resp.HasFailed {
		t.Errorf("in-progress flags wrong: %+v", resp)
	}
}

func TestStatus_UnknownDocument(t *testing.T) {
	t.Parallel()

	p := &fakePoller{pollErr: store.ErrNotFound}
	s := newTestServerWith(p, &fakeGenerator{}, &fakeUploader{})

	w := doJSON(s, http.MethodGet, "/api/documents/nope/status", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/internal/process-chunk
// ---------------------------------------------------------------------------

func TestProcessChunk_Triggers(t *testing.T) {
	t.Parallel()

	p := &fakePoller{}
	s := newTestServerWith(p, &fakeGenerator{}, &fakeUploader{})

	w := doJSON(s, http.MethodPost, "/api/internal/process-chunk",
		`{"documentId":"doc-1","chunkId":7}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(p.processed) != 1 || p.processed[0] != 7 {
		t.Errorf("trigger not dispatched: %v", p.processed)
	}
}

func TestProcessChunk_SaturatedPool(t *testing.T) {
	t.Parallel()

	p := &fakePoller{processErr: fmt.Errorf("pool is full")}
	s := newTestServerWith(p, &fakeGenerator{}, &fakeUploader{})

	w := doJSON(s, http.MethodPost, "/api/internal/process-chunk",
		`{"documentId":"doc-1","chunkId":7}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestProcessChunk_Validation(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := doJSON(s, http.MethodPost, "/api/internal/process-chunk", `{"chunkId":7}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing documentId, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Study-aid endpoints
// ---------------------------------------------------------------------------

func TestChat_ReturnsAnswerWithSources(t *testing.T) {
	t.Parallel()

	g := &fakeGenerator{chat: &studyaid.ChatResponse{
		Text:    "Two identical cells.",
		Sources: []studyaid.Source{{Content: "Mitosis is cell division."}},
	}}
	s := newTestServerWith(&fakePoller{}, g, &fakeUploader{})

	w := doJSON(s, http.MethodPost, "/api/chat",
		`{"documentIds":["doc-1"],"message":"what does mitosis produce?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp studyaid.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "Two identical cells." || len(resp.Sources) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestChat_Validation(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	if w := doJSON(s, http.MethodPost, "/api/chat", `{"documentIds":["d"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing message: expected 400, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodPost, "/api/chat", `{"message":"q"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing documentIds: expected 400, got %d", w.Code)
	}
}

func TestChat_GeneratorFailure(t *testing.T) {
	t.Parallel()

	g := &fakeGenerator{err: fmt.Errorf("backend down")}
	s := newTestServerWith(&fakePoller{}, g, &fakeUploader{})

	w := doJSON(s, http.MethodPost, "/api/chat",
		`{"documentIds":["doc-1"],"message":"q"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestQuiz_ReturnsQuiz(t *testing.T) {
	t.Parallel()

	g := &fakeGenerator{quiz: &studyaid.Quiz{
		Title: "Cell Biology",
		Questions: []studyaid.QuizQuestion{{
			QuestionText:  "Q?",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
		}},
	}}
	s := newTestServerWith(&fakePoller{}, g, &fakeUploader{})

	w := doJSON(s, http.MethodPost, "/api/quiz", `{"documentIds":["doc-1"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var quiz studyaid.Quiz
	if err := json.NewDecoder(w.Body).Decode(&quiz); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if quiz.Title != "Cell Biology" || len(quiz.Questions) != 1 {
		t.Errorf("unexpected quiz: %+v", quiz)
	}
}

func TestFlashcards_ReturnsDeck(t *testing.T) {
	t.Parallel()

	g := &fakeGenerator{cards: []studyaid.Flashcard{{Front: "Mitosis", Back: "Cell division."}}}
	s := newTestServerWith(&fakePoller{}, g, &fakeUploader{})

	w := doJSON(s, http.MethodPost, "/api/flashcards", `{"documentIds":["doc-1"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var cards []studyaid.Flashcard
	if err := json.NewDecoder(w.Body).Decode(&cards); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cards) != 1 || cards[0].Front != "Mitosis" {
		t.Errorf("unexpected cards: %+v", cards)
	}
}

// ---------------------------------------------------------------------------
// Metrics and auth wiring
// ---------------------------------------------------------------------------

func TestMetricsEndpoint_ExposesRequestCounts(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	doJSON(s, http.MethodGet, "/api/health", "")

	w := doJSON(s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "studyowl_http_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}

func TestAuth_ProtectsAPIButNotOperationalRoutes(t *testing.T) {
	t.Parallel()

	s, err := New(&fakePoller{}, &fakeGenerator{}, &fakeUploader{}, &Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		APIKey: "secret",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if w := doJSON(s, http.MethodPost, "/api/quiz", `{"documentIds":["d"]}`); w.Code != http.StatusUnauthorized {
		t.Errorf("protected route without token: expected 401, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must not require auth: got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/quiz", strings.NewReader(`{"documentIds":["d"]}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Errorf("valid token rejected")
	}
}
