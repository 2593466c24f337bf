package embed

import "math"

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero-length or the dimensions differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Centroid accumulates a running mean vector.
type Centroid struct {
	sum   []float64
	count int
}

func (c *Centroid) Add(v []float64) {
	if len(v) == 0 {
		return
	}
	if c.sum == nil {
		c.sum = make([]float64, len(v))
	}
	if len(v) != len(c.sum) {
		return
	}
	for i := range v {
		c.sum[i] += v[i]
	}
	c.count++
}

// Count reports how many vectors have been accumulated.
func (c *Centroid) Count() int {
	if c == nil {
		return 0
	}
	return c.count
}

func (c *Centroid) Mean() []float64 {
	if c == nil || c.count == 0 {
		return nil
	}
	mean := make([]float64, len(c.sum))
	for i := range c.sum {
		mean[i] = c.sum[i] / float64(c.count)
	}
	return mean
}
