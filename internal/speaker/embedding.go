package speaker

import (
	"errors"
	"math"
)

// ErrLengthMismatch is returned by [AverageEmbeddings] when the input vectors
// do not all share the same length.
var ErrLengthMismatch = errors.New("speaker: embedding length mismatch")

// CosineDistance returns 1 − cos(angle between a and b), clamped into [0, 2]
// by clamping the cosine into [−1, 1] first.
//
// Zero-length vectors, mismatched lengths, and zero-magnitude vectors all
// return the maximal distance 1.0 rather than an error: embeddings that
// cannot be compared must never match.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos
}

// AverageEmbeddings returns the element-wise mean of the given equal-length
// embeddings. Returns [ErrLengthMismatch] if any embedding's length differs
// from the first, and an error on empty input.
func AverageEmbeddings(embeddings [][]float32) ([]float32, error) {
	if len(embeddings) == 0 {
		return nil, errors.New("speaker: no embeddings to average")
	}

	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, e := range embeddings {
		if len(e) != dim {
			return nil, ErrLengthMismatch
		}
		for i, v := range e {
			sum[i] += float64(v)
		}
	}

	out := make([]float32, dim)
	n := float64(len(embeddings))
	for i, v := range sum {
		out[i] = float32(v / n)
	}
	return out, nil
}

// AdaptiveThreshold derives a per-speaker acceptance threshold from the
// distances of each enrollment sample to the averaged profile embedding:
//
//	threshold = clamp(mean(distances) + 2·stddev(distances), floor, ceiling)
//
// The sample standard deviation (n−1 denominator) is used, so a single-sample
// input is non-finite and falls back to fallback — as does any other
// non-finite intermediate. Natural intra-speaker variance differs per person
// and per recording setup, which is why this replaces a single global cutoff.
func AdaptiveThreshold(distances []float64, floor, ceiling, fallback float64) float64 {
	if len(distances) == 0 {
		return fallback
	}

	var mean float64
	for _, d := range distances {
		mean += d
	}
	mean /= float64(len(distances))

	var variance float64
	for _, d := range distances {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(distances) - 1) // NaN for n == 1, caught below

	raw := mean + 2*math.Sqrt(variance)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return fallback
	}

	if raw < floor {
		return floor
	}
	if raw > ceiling {
		return ceiling
	}
	return raw
}
