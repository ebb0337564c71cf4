package attendance

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
)

func candidate(name string, embedding ...float32) database.Candidate {
	return database.Candidate{ID: uuid.New(), Name: name, Embedding: embedding}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit apart", []float32{0, 0, 0}, []float32{1, 0, 0}, 1},
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestEuclideanDistance_InvalidInput(t *testing.T) {
	if !math.IsInf(EuclideanDistance([]float32{1, 2}, []float32{1, 2, 3}), 1) {
		t.Error("expected +Inf for mismatched dimensions")
	}
	if !math.IsInf(EuclideanDistance(nil, nil), 1) {
		t.Error("expected +Inf for empty vectors")
	}
}

func TestMatcher_EmptyCandidateSet(t *testing.T) {
	m := NewMatcher(0.6)

	result := m.Match([]float32{0, 0, 0}, nil)

	if result.Matched {
		t.Error("expected no match for empty candidate set")
	}
}

func TestMatcher_NearestWithinThreshold(t *testing.T) {
	m := NewMatcher(0.6)
	a := candidate("A", 0, 0, 0)
	b := candidate("B", 1, 1, 1)
	candidates := database.CandidateSet{a, b}

	result := m.Match([]float32{0.05, 0, 0}, candidates)

	if !result.Matched {
		t.Fatal("expected a match")
	}
	if result.IdentityID != a.ID {
		t.Errorf("expected candidate A, got %s", result.Name)
	}
	if math.Abs(result.Distance-0.05) > 1e-6 {
		t.Errorf("expected distance ~0.05, got %f", result.Distance)
	}
	if math.Abs(result.Confidence-0.95) > 1e-6 {
		t.Errorf("expected confidence ~0.95, got %f", result.Confidence)
	}
}

func TestMatcher_BeyondThreshold(t *testing.T) {
	m := NewMatcher(0.6)
	candidates := database.CandidateSet{
		candidate("A", 0, 0, 0),
		candidate("B", 1, 1, 1),
	}

	result := m.Match([]float32{5, 5, 5}, candidates)

	if result.Matched {
		t.Errorf("expected no match at distance %f", result.Distance)
	}
}

func TestMatcher_ExactThresholdRejected(t *testing.T) {
	m := NewMatcher(0.6)
	candidates := database.CandidateSet{candidate("A", 0, 0, 0)}

	// Distance exactly equal to the threshold must not match.
	result := m.Match([]float32{0.6, 0, 0}, candidates)

	if result.Matched {
		t.Error("expected distance == threshold to be rejected")
	}
}

func TestMatcher_TieBreakFirstWins(t *testing.T) {
	m := NewMatcher(0.6)
	first := candidate("First", 0.1, 0, 0)
	second := candidate("Second", 0.1, 0, 0) // same embedding, enrolled later
	candidates := database.CandidateSet{first, second}

	for i := 0; i < 10; i++ {
		result := m.Match([]float32{0, 0, 0}, candidates)
		if !result.Matched {
			t.Fatal("expected a match")
		}
		if result.IdentityID != first.ID {
			t.Fatalf("tie-break must keep the first candidate, got %s", result.Name)
		}
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	m := NewMatcher(0.6)
	candidates := database.CandidateSet{
		candidate("A", 0.2, 0.1, 0),
		candidate("B", 0.1, 0.2, 0),
		candidate("C", 0, 0, 0.3),
	}
	query := []float32{0.1, 0.1, 0.1}

	first := m.Match(query, candidates)
	for i := 0; i < 5; i++ {
		again := m.Match(query, candidates)
		if again != first {
			t.Fatalf("expected identical result on repeat, got %+v then %+v", first, again)
		}
	}
}

func TestMatcher_ConfidenceClamped(t *testing.T) {
	// A generous threshold can accept distances above 1; confidence must
	// clamp at zero rather than go negative.
	m := NewMatcher(2.0)
	candidates := database.CandidateSet{candidate("A", 0, 0, 0)}

	result := m.Match([]float32{1.5, 0, 0}, candidates)

	if !result.Matched {
		t.Fatal("expected a match under threshold 2.0")
	}
	if result.Confidence != 0 {
		t.Errorf("expected clamped confidence 0, got %f", result.Confidence)
	}
}
