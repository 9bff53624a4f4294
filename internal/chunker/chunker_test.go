package chunker

import (
	"strings"
	"testing"
)

func TestChunk_Empty(t *testing.T) {
	t.Parallel()

	if got := Chunk("", 1000, 200); got != nil {
		t.Errorf("expected nil for empty input, got %d chunks", len(got))
	}
	if got := Chunk("   \n\t  ", 1000, 200); got != nil {
		t.Errorf("expected nil for whitespace-only input, got %d chunks", len(got))
	}
}

// TestChunk_CountAndBoundaries verifies the window count and exact boundary
// positions for a range of input lengths: each window starts step characters
// after the previous one and the final window ends at the text length.
func TestChunk_CountAndBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		length    int
		size      int
		overlap   int
		wantCount int
	}{
		{"shorter than one window", 500, 1000, 200, 1},
		{"exactly one window", 1000, 1000, 200, 2}, // second window is the 800..1000 tail
		{"study-guide sized document", 2500, 1000, 200, 4},
		{"no overlap", 3000, 1000, 0, 3},
		{"single char", 1, 1000, 200, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			text := strings.Repeat("a", tc.length)
			chunks := Chunk(text, tc.size, tc.overlap)

			if len(chunks) != tc.wantCount {
				t.Fatalf("count: want %d, got %d", tc.wantCount, len(chunks))
			}

			step := tc.size - tc.overlap
			for i, c := range chunks {
				start := i * step
				end := start + tc.size
				if end > tc.length {
					end = tc.length
				}
				if len(c) != end-start {
					t.Errorf("chunk %d: want len %d, got %d", i, end-start, len(c))
				}
			}
		})
	}
}

// TestChunk_Reconstruction verifies that stitching the chunks back together,
// skipping each chunk's leading overlap, reproduces the original text.
func TestChunk_Reconstruction(t *testing.T) {
	t.Parallel()

	const size, overlap = 100, 20
	text := strings.Repeat("0123456789", 57) // 570 chars, non-uniform content

	chunks := Chunk(text, size, overlap)

	var b strings.Builder
	step := size - overlap
	for i, c := range chunks {
		start := i * step
		// Skip the part of this chunk already contributed by its predecessor.
		already := b.Len() - start
		if already < 0 {
			t.Fatalf("chunk %d: gap in coverage at offset %d", i, start)
		}
		if already < len(c) {
			b.WriteString(c[already:])
		}
	}

	if b.String() != text {
		t.Errorf("reconstructed text does not match original (got %d chars, want %d)", b.Len(), len(text))
	}
}

// TestChunk_DegenerateOverlap verifies forward progress when overlap >= size:
// the cursor must advance to the end of the current window rather than loop.
func TestChunk_DegenerateOverlap(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 250)

	chunks := Chunk(text, 100, 100)
	if len(chunks) != 3 {
		t.Fatalf("want 3 non-overlapping chunks, got %d", len(chunks))
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(text) {
		t.Errorf("want full coverage of %d chars, got %d", len(text), total)
	}

	// Overlap larger than size must behave the same way.
	chunks = Chunk(text, 100, 500)
	if len(chunks) != 3 {
		t.Errorf("overlap > size: want 3 chunks, got %d", len(chunks))
	}
}

func TestChunk_Defaults(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("y", 2500)
	chunks := Chunk(text, 0, -1)

	// size=1000, overlap=200 → starts at 0, 800, 1600, 2400.
	if len(chunks) != 4 {
		t.Errorf("want 4 chunks with default size/overlap, got %d", len(chunks))
	}
}
