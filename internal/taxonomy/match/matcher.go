package match

import (
	"context"

	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/record"
)

// Embedder is the opaque external embedding provider: one fixed-length
// vector per input string, in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Candidate is one existing phrase record judged close enough to an incoming
// phrase to be the "same" example. Candidates arrive in descending
// similarity order; an exact stored duplicate always ranks first when
// present because the metric is maximal for identical vectors.
type Candidate struct {
	ID       string
	Text     string
	Score    float64
	Values   []float32
	Metadata map[string]any
}

// Config carries the merge-vs-insert tunables. MinScore is the similarity
// floor below which a neighbor is not considered the same phrase.
type Config struct {
	TopK     int
	MinScore float64
}

type Matcher struct {
	log      *logger.Logger
	embedder Embedder
	store    pinecone.VectorStore
	cfg      Config
}

func New(log *logger.Logger, embedder Embedder, store pinecone.VectorStore, cfg Config) *Matcher {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Matcher{
		log:      log.With("service", "SimilarityMatcher"),
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}
}

// Embed delegates to the embedding provider. A provider failure aborts the
// caller's whole batch before any vector write.
func (m *Matcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, apperrors.ExternalStore("embed", err)
	}
	return vecs, nil
}

// Candidates returns existing taxonomy records near the given vector, best
// first, restricted to this engine's records via the category discriminator
// and cut off at the configured similarity floor. Read-only.
func (m *Matcher) Candidates(ctx context.Context, namespace string, vector []float32) ([]Candidate, error) {
	matches, err := m.store.QueryMatches(ctx, namespace, vector, m.cfg.TopK, map[string]any{
		record.MetaCategory: record.CategoryTaxonomy,
	})
	if err != nil {
		return nil, apperrors.ExternalStore("query", err)
	}
	out := make([]Candidate, 0, len(matches))
	for _, c := range matches {
		if c.Score < m.cfg.MinScore {
			continue
		}
		out = append(out, Candidate{
			ID:       c.ID,
			Text:     record.Text(c.Metadata),
			Score:    c.Score,
			Values:   c.Values,
			Metadata: c.Metadata,
		})
	}
	return out, nil
}
