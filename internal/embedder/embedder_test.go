package embedder

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- rate limit parsing ---

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	if got := parseRetryAfter("20"); got != 20*time.Second {
		t.Errorf("seconds form: got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty header: got %v", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("unparseable header: got %v", got)
	}
	// An HTTP date in the future yields a positive wait.
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 31*time.Second {
		t.Errorf("http date form: got %v", got)
	}
}

func TestParseTryAgainIn(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg  string
		want time.Duration
	}{
		{"Rate limit reached. Please try again in 20s.", 20 * time.Second},
		{"Rate limit reached. Please try again in 1.5s.", 1500 * time.Millisecond},
		{"Rate limit reached. Please try again in 250ms.", 250 * time.Millisecond},
		{"no wait hint here", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := parseTryAgainIn(c.msg); got != c.want {
			t.Errorf("parseTryAgainIn(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

// --- ollama backend ---

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	got, err := e.Embed(t.Context(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 2 {
		t.Errorf("unexpected embeddings shape: %v", got)
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[0.1]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	if _, err := e.Embed(t.Context(), []string{"a", "b"}); err == nil {
		t.Errorf("want error when backend returns fewer embeddings than inputs")
	}
}

func TestOllamaEmbedder_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"server busy"}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	_, err := e.Embed(t.Context(), []string{"a"})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("want *RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
}

// --- openai backend ---

func TestOpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		// Deliberately out of order to exercise index-based reassembly.
		w.Write([]byte(`{"data":[{"embedding":[0.3,0.4],"index":1},{"embedding":[0.1,0.2],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "text-embedding-3-small"})
	got, err := e.Embed(t.Context(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got[0][0] != 0.1 || got[1][0] != 0.3 {
		t.Errorf("embeddings not reordered by index: %v", got)
	}
}

func TestOpenAIEmbedder_RateLimitedByMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached. Please try again in 12s."}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-3-small"})
	_, err := e.Embed(t.Context(), []string{"a"})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("want *RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %v, want 12s", rl.RetryAfter)
	}
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-3-small"})
	_, err := e.Embed(t.Context(), []string{"a"})
	if err == nil {
		t.Fatalf("want error for HTTP 500")
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		t.Errorf("HTTP 500 must not be classified as rate limit")
	}
}
