package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Namespaces keep article vectors and conversation vectors apart.
const (
	NamespaceArticles     = "articles"
	NamespaceConversation = "conversation"
)

var (
	ErrNamespaceMismatch = errors.New("record namespace does not match store")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Record is one stored vector.
type Record struct {
	ID        string
	Namespace string
	Vector    []float32
	Text      string
	Metadata  map[string]string
}

// Match is a search hit. Score is the cosine similarity.
type Match struct {
	ID    string
	Score float64
}

// Store is an in-memory vector store using brute-force cosine similarity.
// A store holds exactly one namespace.
type Store struct {
	mu        sync.RWMutex
	namespace string
	dimension int
	records   []Record
	norms     []float64
	byID      map[string]int
}

func NewStore(namespace string) *Store {
	return &Store{namespace: namespace, byID: map[string]int{}}
}

func (s *Store) Namespace() string { return s.namespace }

// Dimension is fixed by the first vector stored; zero while the store is empty of vectors.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Upsert inserts rec or replaces the record with the same id.
// Records without a vector are stored but never returned by Search.
func (s *Store) Upsert(rec Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	if rec.Namespace == "" {
		rec.Namespace = s.namespace
	}
	if rec.Namespace != s.namespace {
		return fmt.Errorf("%w: %q into %q", ErrNamespaceMismatch, rec.Namespace, s.namespace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rec.Vector) > 0 {
		if s.dimension == 0 {
			s.dimension = len(rec.Vector)
		} else if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Vector), s.dimension)
		}
	}

	norm := l2(rec.Vector)
	if i, ok := s.byID[rec.ID]; ok {
		s.records[i] = rec
		s.norms[i] = norm
		return nil
	}
	s.byID[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	s.norms = append(s.norms, norm)
	return nil
}

// Delete removes the record with id, if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.norms = append(s.norms[:i], s.norms[i+1:]...)
	delete(s.byID, id)
	for j := i; j < len(s.records); j++ {
		s.byID[s.records[j].ID] = j
	}
}

// Get returns the record with id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Search returns at most k matches by decreasing similarity. Ties keep insertion order.
func (s *Store) Search(vector []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	qnorm := l2(vector)
	if qnorm == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(s.records))
	for i, rec := range s.records {
		if len(rec.Vector) == 0 || s.norms[i] == 0 {
			continue
		}
		matches = append(matches, Match{ID: rec.ID, Score: dot(rec.Vector, vector) / (s.norms[i] * qnorm)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.norms = nil
	s.byID = map[string]int{}
	s.dimension = 0
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
