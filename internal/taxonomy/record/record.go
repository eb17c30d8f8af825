package record

import (
	"time"

	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
)

// A phrase record lives entirely in vector-store metadata: the phrase text,
// a category discriminator separating this engine's records from unrelated
// uses of the same collection, bookkeeping timestamps, and the tag keys
// produced by the tags codec.

const (
	MetaText      = "text"
	MetaCategory  = "category"
	MetaCreatedAt = "created_at"
	MetaUpdatedAt = "updated_at"

	CategoryTaxonomy = "taxonomy"
)

// volatile lists the metadata keys ignored when deciding whether a candidate
// is an exact duplicate of a requested tag-set.
var volatile = map[string]bool{
	MetaText:                      true,
	MetaCategory:                  true,
	MetaCreatedAt:                 true,
	MetaUpdatedAt:                 true,
	tags.MarkerHasSubIntentFilter: true,
}

// NewMetadata builds the full metadata map for a fresh phrase record.
func NewMetadata(text string, tagSet map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(tagSet)+4)
	for k, v := range tagSet {
		out[k] = v
	}
	ts := now.UTC().Format(time.RFC3339)
	out[MetaText] = text
	out[MetaCategory] = CategoryTaxonomy
	out[MetaCreatedAt] = ts
	out[MetaUpdatedAt] = ts
	return out
}

// Text returns the phrase text stored on a record.
func Text(meta map[string]any) string {
	s, _ := meta[MetaText].(string)
	return s
}

// TagsEqual reports whether the record's tag-set matches the target tag-set
// exactly, ignoring volatile keys on both sides.
func TagsEqual(meta, target map[string]any) bool {
	a := significant(meta)
	b := significant(target)
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// MergeTags unions the target tag-set into the record's metadata and
// refreshes updated_at. It returns the patch to apply plus the list of tag
// keys that were actually new to the record.
func MergeTags(meta, target map[string]any, now time.Time) (patch map[string]any, attached []tags.Key) {
	patch = map[string]any{}
	for k, v := range target {
		if k == tags.MarkerHasSubIntentFilter {
			patch[k] = v
			continue
		}
		key, ok := tags.Parse(k)
		if !ok {
			continue
		}
		if b, had := meta[k].(bool); !had || !b {
			attached = append(attached, key)
		}
		patch[k] = v
	}
	patch[MetaUpdatedAt] = now.UTC().Format(time.RFC3339)
	return patch, attached
}

// StripTags removes the given tag keys from a copy of the record's metadata
// and reports which were actually present. An empty remaining tag-set means
// the record must be deleted rather than written back.
func StripTags(meta map[string]any, remove []tags.Key) (out map[string]any, removed []tags.Key, remaining int) {
	rm := make(map[string]bool, len(remove))
	for _, k := range remove {
		rm[k.String()] = true
	}
	out = make(map[string]any, len(meta))
	for k, v := range meta {
		if rm[k] {
			if b, ok := v.(bool); ok && b {
				if key, okp := tags.Parse(k); okp {
					removed = append(removed, key)
				}
			}
			continue
		}
		out[k] = v
	}
	remaining = len(tags.Of(out))
	return out, removed, remaining
}

func significant(meta map[string]any) map[string]bool {
	out := map[string]bool{}
	for k, v := range meta {
		if volatile[k] {
			continue
		}
		if b, ok := v.(bool); ok && b {
			if _, okp := tags.Parse(k); okp {
				out[k] = true
			}
		}
	}
	return out
}
