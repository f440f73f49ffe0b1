package match

import (
	"fmt"
	"math"

	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/models"
)

type Metric string

const (
	// Cosine distance is 1 - cos(a, b), in [0, 2].
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
)

type Policy string

const (
	// First returns the first entry in gallery order within tolerance.
	First Policy = "first"
	// Nearest returns the closest entry within tolerance.
	Nearest Policy = "nearest"
)

const DefaultTolerance = 0.6

// Result is the outcome for one probe. Identity is a gallery name,
// models.UnknownPerson or models.NoPersonsFound.
type Result struct {
	Identity string  `json:"identity"`
	Distance float64 `json:"distance"`
}

func (r Result) Resolved() bool {
	return models.IsResolved(r.Identity)
}

type Matcher struct {
	tolerance float64
	metric    Metric
	policy    Policy
}

func New(tolerance float64, metric Metric, policy Policy) (*Matcher, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	switch metric {
	case "":
		metric = Cosine
	case Cosine, Euclidean:
	default:
		return nil, fmt.Errorf("unknown match metric %q", metric)
	}
	switch policy {
	case "":
		policy = First
	case First, Nearest:
	default:
		return nil, fmt.Errorf("unknown match policy %q", policy)
	}
	return &Matcher{tolerance: tolerance, metric: metric, policy: policy}, nil
}

// Distance compares two embeddings under the matcher's metric. Embeddings of
// different length never match.
func (m *Matcher) Distance(a, b models.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	if m.metric == Euclidean {
		return EuclideanDistance(a, b)
	}
	return CosineDistance(a, b)
}

// Match resolves one probe against a gallery snapshot.
func (m *Matcher) Match(probe models.Embedding, entries []gallery.Entry) Result {
	best := Result{Identity: models.UnknownPerson, Distance: math.Inf(1)}
	for _, e := range entries {
		d := m.Distance(probe, e.Embedding)
		if d > m.tolerance {
			continue
		}
		if m.policy == First {
			return Result{Identity: e.Identity, Distance: d}
		}
		if d < best.Distance {
			best = Result{Identity: e.Identity, Distance: d}
		}
	}
	return best
}

// MatchFrame resolves every probe from one frame. A frame without faces
// yields a single models.NoPersonsFound result.
func (m *Matcher) MatchFrame(probes []models.Embedding, entries []gallery.Entry) []Result {
	if len(probes) == 0 {
		return []Result{{Identity: models.NoPersonsFound, Distance: math.Inf(1)}}
	}
	out := make([]Result, len(probes))
	for i, p := range probes {
		out[i] = m.Match(p, entries)
	}
	return out
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Min(1.0, math.Max(-1.0, dot/math.Sqrt(na*nb)))
}

func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
