package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/intentbase-backend/internal/clients/pinecone"
	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/match"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/record"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
)

// Engine owns every phrase-level mutation of the vector store: the
// duplicate/merge/insert decision for incoming phrases, single-phrase
// retagging, and phrase deletion. It never touches the relational store;
// counter adjustments are handed back as tag-keyed deltas for the caller to
// apply in one transaction after the vector writes have succeeded.
type Engine struct {
	log     *logger.Logger
	matcher *match.Matcher
	store   pinecone.VectorStore
}

func New(log *logger.Logger, matcher *match.Matcher, store pinecone.VectorStore) *Engine {
	return &Engine{
		log:     log.With("service", "PhraseUpsertEngine"),
		matcher: matcher,
		store:   store,
	}
}

// Deltas accumulates phrase-count adjustments per tag key. A tag contributes
// +1 when it is attached to a record that did not carry it and -1 when it is
// stripped, which keeps binding counters equal to the number of records
// carrying the tag without ever rescanning the store.
type Deltas map[tags.Key]int

func (d Deltas) add(keys []tags.Key, by int) {
	for _, k := range keys {
		d[k] += by
	}
}

func (d Deltas) merge(other Deltas) {
	for k, v := range other {
		d[k] += v
	}
}

type UpsertResult struct {
	Inserted   int
	Merged     int
	Duplicates []string
	Deltas     Deltas
}

// UpsertBatch runs the per-phrase dedup decision for every phrase against
// the (parent, children) target and flushes all fresh inserts in a single
// store round trip. An embedding failure aborts the whole batch before any
// write; vector writes themselves are at-least-once, and a retry of the same
// batch reports the already-applied phrases as duplicates.
func (e *Engine) UpsertBatch(ctx context.Context, namespace string, parent *string, children []string, phrases []string) (*UpsertResult, error) {
	targetTags := tags.Encode(parent, children)
	if len(tags.Of(targetTags)) == 0 {
		return nil, apperrors.Validationf("upsert target names no taxonomy node")
	}

	clean := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if s := strings.TrimSpace(p); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return nil, apperrors.Validationf("no phrases given")
	}

	vecs, err := e.matcher.Embed(ctx, clean)
	if err != nil {
		return nil, err
	}

	res := &UpsertResult{Deltas: Deltas{}}
	now := time.Now().UTC()

	var pending []pinecone.Vector
	pendingTexts := map[string]bool{}

	for i, phrase := range clean {
		// Identical text earlier in the same batch: the store cannot
		// see queued inserts yet, so catch it here.
		if pendingTexts[strings.ToLower(phrase)] {
			res.Duplicates = append(res.Duplicates, phrase)
			continue
		}

		outcome, deltas, err := e.upsertOne(ctx, namespace, phrase, vecs[i], targetTags, now)
		if err != nil {
			return nil, err
		}
		res.Deltas.merge(deltas)
		switch outcome {
		case outcomeDuplicate:
			res.Duplicates = append(res.Duplicates, phrase)
		case outcomeMerged:
			res.Merged++
		case outcomeInsert:
			pending = append(pending, pinecone.Vector{
				ID:       uuid.New().String(),
				Values:   vecs[i],
				Metadata: record.NewMetadata(phrase, targetTags, now),
			})
			pendingTexts[strings.ToLower(phrase)] = true
			res.Deltas.add(tags.Of(targetTags), 1)
			res.Inserted++
		}
	}

	if len(pending) > 0 {
		if err := e.store.Upsert(ctx, namespace, pending); err != nil {
			return nil, apperrors.ExternalStore("upsert", err)
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeInsert outcome = iota
	outcomeMerged
	outcomeDuplicate
)

// upsertOne scans the ranked candidates for one phrase. The first candidate
// decides the reported outcome: tag-set equal to the target means exact
// duplicate and ends the scan; anything else is a near-duplicate that
// absorbs the target tags via a metadata-only patch. Later candidates still
// receive the tag merge so every qualifying neighbor converges on the target
// tag-set, but they do not change the decision.
func (e *Engine) upsertOne(ctx context.Context, namespace, phrase string, vec []float32, targetTags map[string]any, now time.Time) (outcome, Deltas, error) {
	candidates, err := e.matcher.Candidates(ctx, namespace, vec)
	if err != nil {
		return 0, nil, err
	}
	if len(candidates) == 0 {
		return outcomeInsert, Deltas{}, nil
	}

	deltas := Deltas{}
	for i, c := range candidates {
		if record.TagsEqual(c.Metadata, targetTags) {
			if i == 0 {
				return outcomeDuplicate, deltas, nil
			}
			// Already carries the exact target tag-set; nothing to
			// merge in.
			continue
		}

		patch, attached := record.MergeTags(c.Metadata, targetTags, now)
		if err := e.store.UpdateMetadata(ctx, namespace, c.ID, patch); err != nil {
			return 0, nil, apperrors.ExternalStore("update metadata", err)
		}
		deltas.add(attached, 1)
	}
	return outcomeMerged, deltas, nil
}

// EditResult reports a retag. Merged means the phrase was absorbed by
// another record and its own record no longer exists.
type EditResult struct {
	Merged bool
	Deltas Deltas
}

// EditPhrase retags one existing phrase: its old tags are stripped first, so
// the record keeps nothing from its previous classification, then the usual
// match/merge decision runs against the new target using the stored
// embedding. If the decision lands on another record, the stripped original
// is removed outright rather than left behind tag-less.
func (e *Engine) EditPhrase(ctx context.Context, namespace, phraseID string, parent *string, children []string) (*EditResult, error) {
	targetTags := tags.Encode(parent, children)
	if len(tags.Of(targetTags)) == 0 {
		return nil, apperrors.Validationf("edit target names no taxonomy node")
	}

	rec, err := e.store.FetchByID(ctx, namespace, phraseID)
	if err != nil {
		return nil, apperrors.ExternalStore("fetch", err)
	}
	if rec == nil {
		return nil, apperrors.NotFoundf("phrase %s", phraseID)
	}

	now := time.Now().UTC()
	deltas := Deltas{}

	stripped, removed, _ := record.StripTags(rec.Metadata, tags.Of(rec.Metadata))
	deltas.add(removed, -1)

	candidates, err := e.matcher.Candidates(ctx, namespace, rec.Values)
	if err != nil {
		return nil, err
	}

	selfAbsorbed := false
	for i, c := range candidates {
		meta := c.Metadata
		if c.ID == phraseID {
			meta = stripped
		}

		if record.TagsEqual(meta, targetTags) {
			if i == 0 {
				// Another record already holds this phrase under
				// the target tags; drop the stripped original.
				if err := e.store.DeleteIDs(ctx, namespace, []string{phraseID}); err != nil {
					return nil, apperrors.ExternalStore("delete", err)
				}
				return &EditResult{Merged: true, Deltas: deltas}, nil
			}
			continue
		}

		patch, attached := record.MergeTags(meta, targetTags, now)
		if c.ID == phraseID {
			// Keys were removed from the original, so this write
			// must replace metadata wholly, not merge-patch.
			full := cloneInto(stripped, patch)
			if err := e.store.Upsert(ctx, namespace, []pinecone.Vector{{
				ID:       phraseID,
				Values:   rec.Values,
				Metadata: full,
			}}); err != nil {
				return nil, apperrors.ExternalStore("upsert", err)
			}
			selfAbsorbed = true
		} else {
			if err := e.store.UpdateMetadata(ctx, namespace, c.ID, patch); err != nil {
				return nil, apperrors.ExternalStore("update metadata", err)
			}
		}
		deltas.add(attached, 1)
	}

	if !selfAbsorbed {
		// The original never received the new target (a duplicate
		// decision stopped the scan, or the self candidate matched the
		// target outright after stripping, which cannot happen with a
		// non-empty target). Remove it so no stale-tagged record stays.
		if err := e.store.DeleteIDs(ctx, namespace, []string{phraseID}); err != nil {
			return nil, apperrors.ExternalStore("delete", err)
		}
	}
	return &EditResult{Merged: !selfAbsorbed, Deltas: deltas}, nil
}

// DeletePhrase removes one record and returns the counter decrements for
// every tag it carried.
func (e *Engine) DeletePhrase(ctx context.Context, namespace, phraseID string) (Deltas, error) {
	rec, err := e.store.FetchByID(ctx, namespace, phraseID)
	if err != nil {
		return nil, apperrors.ExternalStore("fetch", err)
	}
	if rec == nil {
		return nil, apperrors.NotFoundf("phrase %s", phraseID)
	}
	deltas := Deltas{}
	deltas.add(tags.Of(rec.Metadata), -1)
	if err := e.store.DeleteIDs(ctx, namespace, []string{phraseID}); err != nil {
		return nil, apperrors.ExternalStore("delete", err)
	}
	return deltas, nil
}

func cloneInto(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
