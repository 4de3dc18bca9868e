package index

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the distance function shared by Build and Query. Smaller is closer.
type Metric string

const (
	// L2 is the Euclidean distance.
	L2 Metric = "l2"
	// Cosine is 1 - cosine similarity, in [0, 2]. Zero vectors are at distance 1 from everything.
	Cosine Metric = "cosine"
)

// ParseMetric accepts "l2" (also "euclidean") and "cosine", case-insensitive.
// Empty input selects L2.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "euclidean":
		return L2, nil
	case "cosine":
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

func (m Metric) valid() bool {
	return m == L2 || m == Cosine
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }

func euclidean(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

// cosineDistance takes precomputed norms so the index pays for them once.
func cosineDistance(a []float32, na float64, b []float32, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot(a, b)/(na*nb)
}
