package tags

import (
	"sort"
	"strings"
)

// The vector store has no hierarchical filter, so taxonomy membership is
// flattened into boolean metadata keys: "INTENT,<name>" for a root node and
// "SUBINTENT,<parent>,<name>" for a child node. This codec is the single
// source of truth for that key format; nothing else in the engine builds or
// parses tag strings.

const (
	rootPrefix  = "INTENT"
	childPrefix = "SUBINTENT"
	sep         = ","

	// MarkerHasSubIntentFilter is set alongside the tags whenever a phrase
	// was targeted at a specific parent, with or without children.
	MarkerHasSubIntentFilter = "has_sub_intent_filter"
)

// Key is one serialized taxonomy membership tag.
type Key string

func Root(name string) Key {
	return Key(rootPrefix + sep + normalize(name))
}

func Child(parent, name string) Key {
	return Key(childPrefix + sep + normalize(parent) + sep + normalize(name))
}

// Parse reports whether s is a well-formed tag key. Malformed keys (wrong
// part count, empty names) are skipped by callers rather than failing a whole
// decode.
func Parse(s string) (Key, bool) {
	parts := strings.Split(s, sep)
	switch {
	case len(parts) == 2 && parts[0] == rootPrefix && parts[1] != "":
		return Key(s), true
	case len(parts) == 3 && parts[0] == childPrefix && parts[1] != "" && parts[2] != "":
		return Key(s), true
	}
	return "", false
}

func (k Key) IsRoot() bool {
	return strings.HasPrefix(string(k), rootPrefix+sep)
}

func (k Key) IsChild() bool {
	return strings.HasPrefix(string(k), childPrefix+sep)
}

// ParentName returns the parent segment of a child key, or the node name of a
// root key.
func (k Key) ParentName() string {
	parts := strings.Split(string(k), sep)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Name returns the node name the key points at.
func (k Key) Name() string {
	parts := strings.Split(string(k), sep)
	return parts[len(parts)-1]
}

func (k Key) String() string { return string(k) }

// Encode builds the metadata entries for tagging a phrase under the given
// target. With a nil parent each name becomes an independent root tag. With a
// parent set, each child gets a SUBINTENT tag, the parent gets its own INTENT
// tag, and the sub-intent-filter marker is raised; an empty child list tags
// the parent alone.
func Encode(parent *string, children []string) map[string]any {
	out := make(map[string]any, len(children)+2)
	if parent == nil {
		for _, n := range children {
			if normalize(n) == "" {
				continue
			}
			out[Root(n).String()] = true
		}
		return out
	}
	out[Root(*parent).String()] = true
	out[MarkerHasSubIntentFilter] = true
	for _, c := range children {
		if normalize(c) == "" {
			continue
		}
		out[Child(*parent, c).String()] = true
	}
	return out
}

// Decode groups the tag entries of a metadata map back into
// parent -> children. Child keys are grouped by their parent segment first,
// then any bare root key is added with a possibly empty child list. Filters
// restrict the result:
//   - parentFilter alone keeps only that parent's entry;
//   - parentFilter plus childFilter intersects that entry's children with the
//     requested ones;
//   - childFilter alone treats each requested child name as a parent lookup
//     key of its own.
//
// Entries that are not well-formed tag keys or whose value is not boolean
// true are ignored.
func Decode(meta map[string]any, parentFilter *string, childFilter []string) map[string][]string {
	grouped := map[string]map[string]bool{}
	for raw, v := range meta {
		if b, ok := v.(bool); !ok || !b {
			continue
		}
		k, ok := Parse(raw)
		if !ok {
			continue
		}
		if k.IsChild() {
			p := k.ParentName()
			if grouped[p] == nil {
				grouped[p] = map[string]bool{}
			}
			grouped[p][k.Name()] = true
		}
	}
	for raw, v := range meta {
		if b, ok := v.(bool); !ok || !b {
			continue
		}
		k, ok := Parse(raw)
		if !ok || !k.IsRoot() {
			continue
		}
		if grouped[k.Name()] == nil {
			grouped[k.Name()] = map[string]bool{}
		}
	}

	switch {
	case parentFilter != nil:
		p := normalize(*parentFilter)
		kids, ok := grouped[p]
		if !ok {
			return map[string][]string{}
		}
		if len(childFilter) == 0 {
			return map[string][]string{p: sortedNames(kids)}
		}
		keep := map[string]bool{}
		for _, c := range childFilter {
			c = normalize(c)
			if kids[c] {
				keep[c] = true
			}
		}
		return map[string][]string{p: sortedNames(keep)}

	case len(childFilter) > 0:
		out := map[string][]string{}
		for _, c := range childFilter {
			c = normalize(c)
			if kids, ok := grouped[c]; ok {
				out[c] = sortedNames(kids)
			}
		}
		return out
	}

	out := make(map[string][]string, len(grouped))
	for p, kids := range grouped {
		out[p] = sortedNames(kids)
	}
	return out
}

// Of extracts every well-formed tag key present (and true) in meta.
func Of(meta map[string]any) []Key {
	out := make([]Key, 0, len(meta))
	for raw, v := range meta {
		if b, ok := v.(bool); !ok || !b {
			continue
		}
		if k, ok := Parse(raw); ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize is the canonical tag-name form shared with the relational side.
func Normalize(name string) string { return normalize(name) }
