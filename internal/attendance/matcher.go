package attendance

import (
	"math"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// MatchResult is the outcome of matching one query embedding against a
// candidate snapshot. When Matched is false the identity fields are zero;
// Distance still holds the best distance seen (or +Inf for an empty set).
type MatchResult struct {
	Matched    bool
	IdentityID uuid.UUID
	Name       string
	Distance   float64
	Confidence float64
}

// EuclideanDistance computes the L2 distance between two vectors.
// Returns +Inf for mismatched or empty input, which can never match.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Matcher finds the nearest enrolled identity for a query embedding.
// It is read-only and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher with the given acceptance threshold.
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match scans the candidate set linearly and returns the candidate with the
// minimum Euclidean distance to the query, accepted when strictly below the
// threshold. Ties keep the earliest candidate in the set's iteration order,
// so results are deterministic for a fixed snapshot.
func (m *Matcher) Match(query []float32, candidates database.CandidateSet) MatchResult {
	best := -1
	bestDistance := math.Inf(1)

	for i := range candidates {
		distance := EuclideanDistance(query, candidates[i].Embedding)
		if distance < bestDistance {
			bestDistance = distance
			best = i
		}
	}

	if best < 0 || bestDistance >= m.threshold {
		return MatchResult{Distance: bestDistance}
	}

	confidence := 1 - bestDistance
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return MatchResult{
		Matched:    true,
		IdentityID: candidates[best].ID,
		Name:       candidates[best].Name,
		Distance:   bestDistance,
		Confidence: confidence,
	}
}
