package taxotest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
)

// FakeEmbedder hands out deterministic unit vectors per input text. Tests
// that need two different texts to count as near-duplicates register both
// under the same vector with Alias.
type FakeEmbedder struct {
	mu      sync.Mutex
	aliases map[string]string
	Fail    error
	Calls   int
}

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{aliases: map[string]string{}}
}

// Alias makes text embed identically to canonical.
func (e *FakeEmbedder) Alias(text, canonical string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aliases[text] = canonical
}

func (e *FakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls++
	if e.Fail != nil {
		return nil, e.Fail
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		if canon, ok := e.aliases[s]; ok {
			s = canon
		}
		out[i] = textVector(s)
	}
	return out, nil
}

func textVector(s string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	seed := h.Sum64()
	v := make([]float32, 8)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>33))/float32(1<<31) + 0.001
		norm += float64(v[i]) * float64(v[i])
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// FakeVectorStore is an in-memory pinecone.VectorStore with cosine ranking,
// metadata filters and fault injection, enough to exercise the sync engine
// end to end without a live index.
type FakeVectorStore struct {
	mu   sync.Mutex
	data map[string]map[string]pinecone.Vector

	FailQuery  error
	FailUpsert error
	FailUpdate error
	FailDelete error
}

func NewFakeVectorStore() *FakeVectorStore {
	return &FakeVectorStore{data: map[string]map[string]pinecone.Vector{}}
}

func (s *FakeVectorStore) ns(namespace string) map[string]pinecone.Vector {
	if s.data[namespace] == nil {
		s.data[namespace] = map[string]pinecone.Vector{}
	}
	return s.data[namespace]
}

func (s *FakeVectorStore) Upsert(_ context.Context, namespace string, vectors []pinecone.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpsert != nil {
		return s.FailUpsert
	}
	ns := s.ns(namespace)
	for _, v := range vectors {
		cp := pinecone.Vector{ID: v.ID, Values: append([]float32(nil), v.Values...), Metadata: cloneMeta(v.Metadata)}
		ns[v.ID] = cp
	}
	return nil
}

func (s *FakeVectorStore) QueryMatches(_ context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailQuery != nil {
		return nil, s.FailQuery
	}
	var out []pinecone.VectorMatch
	for _, v := range s.ns(namespace) {
		if !matchesFilter(v.Metadata, filter) {
			continue
		}
		out = append(out, pinecone.VectorMatch{
			ID:       v.ID,
			Score:    cosine(q, v.Values),
			Values:   append([]float32(nil), v.Values...),
			Metadata: cloneMeta(v.Metadata),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *FakeVectorStore) FetchByFilter(_ context.Context, namespace string, filter map[string]any) ([]pinecone.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailQuery != nil {
		return nil, s.FailQuery
	}
	var out []pinecone.VectorMatch
	for _, v := range s.ns(namespace) {
		if !matchesFilter(v.Metadata, filter) {
			continue
		}
		out = append(out, pinecone.VectorMatch{
			ID:       v.ID,
			Values:   append([]float32(nil), v.Values...),
			Metadata: cloneMeta(v.Metadata),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FakeVectorStore) FetchByID(_ context.Context, namespace string, id string) (*pinecone.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.ns(namespace)[id]
	if !ok {
		return nil, nil
	}
	return &pinecone.VectorMatch{
		ID:       v.ID,
		Values:   append([]float32(nil), v.Values...),
		Metadata: cloneMeta(v.Metadata),
	}, nil
}

func (s *FakeVectorStore) UpdateMetadata(_ context.Context, namespace string, id string, set map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate != nil {
		return s.FailUpdate
	}
	v, ok := s.ns(namespace)[id]
	if !ok {
		return fmt.Errorf("vector %s not found", id)
	}
	for k, val := range set {
		v.Metadata[k] = val
	}
	s.ns(namespace)[id] = v
	return nil
}

func (s *FakeVectorStore) DeleteIDs(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return s.FailDelete
	}
	ns := s.ns(namespace)
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// Records returns a metadata snapshot of every record in the namespace,
// keyed by id, for end-state assertions.
func (s *FakeVectorStore) Records(namespace string) map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]map[string]any{}
	for id, v := range s.ns(namespace) {
		out[id] = cloneMeta(v.Metadata)
	}
	return out
}

func matchesFilter(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
