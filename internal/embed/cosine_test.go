package embed

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float64{1, 0}, []float64{1, 0}); got != 1 {
		t.Fatalf("identical vectors should be 1, got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors should be 0, got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{-1, 0}); got != -1 {
		t.Fatalf("opposite vectors should be -1, got %f", got)
	}
	if got := Cosine([]float64{2, 0}, []float64{5, 0}); math.Abs(got-1) > 1e-12 {
		t.Fatalf("scaled parallel vectors should be 1, got %f", got)
	}
}

func TestCosineDegenerateInputs(t *testing.T) {
	t.Parallel()

	if got := Cosine(nil, nil); got != 0 {
		t.Fatalf("empty vectors should be 0, got %f", got)
	}
	if got := Cosine([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("dimension mismatch should be 0, got %f", got)
	}
	if got := Cosine([]float64{0, 0}, []float64{1, 1}); got != 0 {
		t.Fatalf("zero-norm vector should be 0, got %f", got)
	}
}

func TestCentroid(t *testing.T) {
	t.Parallel()

	var c Centroid
	if c.Mean() != nil || c.Count() != 0 {
		t.Fatalf("empty centroid should have nil mean")
	}

	c.Add([]float64{1, 0})
	c.Add([]float64{0, 1})
	mean := c.Mean()
	if len(mean) != 2 || mean[0] != 0.5 || mean[1] != 0.5 {
		t.Fatalf("unexpected mean: %v", mean)
	}
	if c.Count() != 2 {
		t.Fatalf("expected count 2, got %d", c.Count())
	}

	// Mismatched dimensions and empty vectors are ignored.
	c.Add([]float64{1, 2, 3})
	c.Add(nil)
	if c.Count() != 2 {
		t.Fatalf("invalid vectors should not change the count, got %d", c.Count())
	}
}
