package attendance

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// HNSW parameters tuned for face embedding rosters.
const (
	hnswMaxNeighbors = 16
	// annMinCandidates is the roster size below which the index is skipped;
	// a plain linear scan is faster for small candidate sets.
	annMinCandidates = 256
	// annSelectK is how many candidates the index pre-selects for the exact
	// rejection check.
	annSelectK = 16
)

// CandidateIndex is an optional in-memory ANN index over active identities.
// It pre-selects a nearest-neighbor subset used to reject unrecognized faces
// without a full scan; accepted matches are always confirmed by the exact
// scan over the full snapshot. The graph is keyed by the uuid's string form
// since hnsw requires an ordered key type.
type CandidateIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	present map[string]struct{}
}

// NewCandidateIndex creates an empty index.
func NewCandidateIndex() *CandidateIndex {
	return &CandidateIndex{present: make(map[string]struct{})}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with the given snapshot.
func (x *CandidateIndex) Build(candidates database.CandidateSet) {
	x.mu.Lock()
	defer x.mu.Unlock()

	g := newGraph()
	present := make(map[string]struct{}, len(candidates))
	for i := range candidates {
		if len(candidates[i].Embedding) == 0 {
			continue
		}
		key := candidates[i].ID.String()
		g.Add(hnsw.MakeNode(key, candidates[i].Embedding))
		present[key] = struct{}{}
	}
	x.graph = g
	x.present = present
}

// Add inserts a single candidate.
func (x *CandidateIndex) Add(candidate database.Candidate) {
	if len(candidate.Embedding) == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.graph == nil {
		x.graph = newGraph()
	}
	key := candidate.ID.String()
	x.graph.Add(hnsw.MakeNode(key, candidate.Embedding))
	x.present[key] = struct{}{}
}

// Remove drops a candidate from search results. HNSW has no true deletion;
// removed ids are filtered out of Select results.
func (x *CandidateIndex) Remove(id uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.present, id.String())
}

// Len returns the number of searchable candidates.
func (x *CandidateIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.present)
}

// Select returns up to k nearest candidate ids for the query.
func (x *CandidateIndex) Select(query []float32, k int) []uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		return nil
	}

	neighbors := x.graph.Search(query, k)
	ids := make([]uuid.UUID, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := x.present[n.Key]; !ok {
			continue
		}
		id, err := uuid.Parse(n.Key)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
