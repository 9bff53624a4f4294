package embedder

import (
	"fmt"
	"math"
)

// Validate checks that vec has exactly the expected dimensionality and
// contains only finite entries, then L2-normalizes it in place. A
// zero-magnitude vector is left as all zeros rather than rejected — it
// carries no direction to normalize.
//
// The chunk worker treats a validation failure as a permanent (non-retryable)
// error: the backend returned a malformed vector and retrying won't fix it.
func Validate(vec []float32, dimensions int) error {
	if len(vec) != dimensions {
		return fmt.Errorf("embedder: vector has %d dimensions, expected %d", len(vec), dimensions)
	}

	var sum float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedder: vector entry %d is not finite", i)
		}
		sum += f * f
	}

	if sum == 0 {
		return nil
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return nil
}

// ValidateBatch applies Validate to every vector in the batch, reporting the
// failing index in the error.
func ValidateBatch(vecs [][]float32, dimensions int) error {
	for i, vec := range vecs {
		if err := Validate(vec, dimensions); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}
