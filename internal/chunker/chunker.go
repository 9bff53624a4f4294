// Package chunker splits raw document text into overlapping fixed-size
// windows. Each window is the atomic unit of embedding work downstream.
// The chunker is pure and deterministic — all pipeline state lives elsewhere.
package chunker

import "strings"

// DefaultSize is the window length in characters used when the caller passes 0.
const DefaultSize = 1000

// DefaultOverlap is the number of characters shared between consecutive
// windows when the caller passes a negative overlap.
const DefaultOverlap = 200

// Chunk splits text into consecutive overlapping windows of size characters,
// advancing the cursor by size-overlap characters per step. The final window
// may be shorter than size. The cursor always makes forward progress: when
// overlap >= size the step degenerates and the cursor jumps to the end of
// the current window instead.
//
// Empty (or all-whitespace) input yields a nil slice — callers must treat
// the zero-chunk case as a document with no embedding work.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])

		step := size - overlap
		if step <= 0 {
			// Degenerate overlap — jump to the end of this window.
			step = end - start
		}
		start += step
	}

	return chunks
}
