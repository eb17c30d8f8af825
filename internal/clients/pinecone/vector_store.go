package pinecone

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

// VectorStore is the data-plane surface the taxonomy sync engine runs
// against. Every method is scoped to a logical namespace owned by one tenant.
type VectorStore interface {
	// Upsert inserts records, or fully replaces an existing record
	// (values and metadata) when the id already exists. Full replacement
	// is the only way to drop metadata keys, so tag removal goes through
	// here rather than UpdateMetadata.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns candidates ordered by descending similarity,
	// with metadata and stored values included.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	// FetchByFilter returns every record matching a metadata filter.
	FetchByFilter(ctx context.Context, namespace string, filter map[string]any) ([]VectorMatch, error)
	FetchByID(ctx context.Context, namespace string, id string) (*VectorMatch, error)
	// UpdateMetadata merge-patches metadata keys onto an existing record.
	UpdateMetadata(ctx context.Context, namespace string, id string, set map[string]any) error
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

type VectorMatch struct {
	ID       string
	Score    float64
	Values   []float32
	Metadata map[string]any
}

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	nsPrefix  string
	dim       int
	scanTopK  int
}

func NewVectorStore(log *logger.Logger, pc Client) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	indexName := strings.TrimSpace(os.Getenv("PINECONE_INDEX_NAME"))
	if indexName == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}

	host := strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST"))

	nsPrefix := strings.TrimSpace(os.Getenv("PINECONE_NAMESPACE_PREFIX"))
	if nsPrefix == "" {
		nsPrefix = "ib"
	}

	dim := 0
	if v := strings.TrimSpace(os.Getenv("PINECONE_VECTOR_DIM")); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid PINECONE_VECTOR_DIM %q", v)
		}
		dim = d
	}

	// If host or dimension missing, bootstrap via describe_index (fine for
	// local/dev; avoid in prod).
	if host == "" || dim == 0 {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		if host == "" {
			host = strings.TrimSpace(desc.Host)
			log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
				"index_name", indexName,
				"index_host", host,
			)
		}
		if dim == 0 {
			dim = desc.Dimension
		}
		if host == "" || dim <= 0 {
			return nil, fmt.Errorf("pinecone describe_index returned host=%q dimension=%d", desc.Host, desc.Dimension)
		}
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
		nsPrefix:  nsPrefix,
		dim:       dim,
		scanTopK:  10000,
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(vectors) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	_, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
		Namespace: ns,
		Vectors:   vectors,
	})
	return err
}

func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error) {
	if s == nil || s.pc == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	ns := s.qualifyNamespace(namespace)
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       ns,
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeValues:   true,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, VectorMatch{ID: m.ID, Score: m.Score, Values: m.Values, Metadata: m.Metadata})
	}
	return out, nil
}

// FetchByFilter runs a metadata-filtered query with a zero vector. The
// serverless query API is the only filtered read the data plane offers, so
// similarity scores in the result are meaningless here; callers get the full
// matching set up to scanTopK records per namespace.
func (s *vectorStore) FetchByFilter(ctx context.Context, namespace string, filter map[string]any) ([]VectorMatch, error) {
	if s == nil || s.pc == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	zero := make([]float32, s.dim)
	ns := s.qualifyNamespace(namespace)
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       ns,
		Vector:          zero,
		TopK:            s.scanTopK,
		Filter:          filter,
		IncludeValues:   true,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, VectorMatch{ID: m.ID, Score: m.Score, Values: m.Values, Metadata: m.Metadata})
	}
	return out, nil
}

func (s *vectorStore) FetchByID(ctx context.Context, namespace string, id string) (*VectorMatch, error) {
	if s == nil || s.pc == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	ns := s.qualifyNamespace(namespace)
	resp, err := s.pc.FetchVectors(ctx, s.indexHost, ns, []string{id})
	if err != nil {
		return nil, err
	}
	v, ok := resp.Vectors[id]
	if !ok {
		return nil, nil
	}
	return &VectorMatch{ID: v.ID, Values: v.Values, Metadata: v.Metadata}, nil
}

func (s *vectorStore) UpdateMetadata(ctx context.Context, namespace string, id string, set map[string]any) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(set) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	return s.pc.UpdateVector(ctx, s.indexHost, UpdateRequest{
		ID:          id,
		Namespace:   ns,
		SetMetadata: set,
	})
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(ids) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	return s.pc.DeleteVectors(ctx, s.indexHost, DeleteRequest{
		Namespace: ns,
		IDs:       ids,
	})
}

func (s *vectorStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}
