// Package embedder provides implementations of the Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to
// a different backend (OpenAI, Azure OpenAI, Ollama) via plain HTTP — no
// additional SDK dependencies are required.
//
// Embedding backends are the pipeline's least reliable collaborator: they
// rate-limit, time out, and occasionally return malformed vectors. The
// package therefore surfaces rate limits as a typed error carrying the
// provider-suggested wait, so the chunk worker can decide between an
// in-process retry and a re-queue.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RateLimitError reports that the backend refused the request because the
// caller is over quota. RetryAfter is the provider-suggested wait; zero when
// the provider gave none.
type RateLimitError struct {
	// RetryAfter is the wait suggested by the provider, 0 if unknown.
	RetryAfter time.Duration
	// Message is the provider's error text.
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("embedder: rate limited, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("embedder: rate limited: %s", e.Message)
}

// rateLimitFromResponse builds a RateLimitError from a 429 response,
// preferring the Retry-After header and falling back to the "try again in
// 1.5s" phrasing some providers embed in the error message.
func rateLimitFromResponse(resp *http.Response, message string) *RateLimitError {
	e := &RateLimitError{Message: message}
	if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
		e.RetryAfter = wait
		return e
	}
	e.RetryAfter = parseTryAgainIn(message)
	return e
}

// parseRetryAfter parses a Retry-After header value, which per RFC 9110 is
// either a delta in seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

// parseTryAgainIn extracts a duration from "... try again in 20s." style
// error messages. Returns 0 when no such phrase is present.
func parseTryAgainIn(msg string) time.Duration {
	lower := strings.ToLower(msg)
	idx := strings.Index(lower, "try again in ")
	if idx < 0 {
		return 0
	}
	rest := lower[idx+len("try again in "):]
	end := 0
	for end < len(rest) && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	// Include the unit suffix (ms, s, m, h).
	unitEnd := end
	for unitEnd < len(rest) && rest[unitEnd] >= 'a' && rest[unitEnd] <= 'z' {
		unitEnd++
	}
	if d, err := time.ParseDuration(rest[:unitEnd]); err == nil && d > 0 {
		return d
	}
	return 0
}
