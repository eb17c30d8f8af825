package record

import (
	"testing"
	"time"

	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
)

func strPtr(s string) *string { return &s }

func TestNewMetadata(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := NewMetadata("where is my order", tags.Encode(strPtr("order_status"), nil), now)

	if Text(meta) != "where is my order" {
		t.Fatalf("Text = %q", Text(meta))
	}
	if meta[MetaCategory] != CategoryTaxonomy {
		t.Fatalf("category = %v", meta[MetaCategory])
	}
	if meta[MetaCreatedAt] != "2026-03-01T12:00:00Z" || meta[MetaUpdatedAt] != meta[MetaCreatedAt] {
		t.Fatalf("timestamps = %v / %v", meta[MetaCreatedAt], meta[MetaUpdatedAt])
	}
	if b, _ := meta["INTENT,order_status"].(bool); !b {
		t.Fatal("missing root tag")
	}
}

func TestTagsEqualIgnoresVolatileKeys(t *testing.T) {
	target := tags.Encode(strPtr("order_status"), nil)
	meta := NewMetadata("text a", target, time.Now())
	if !TagsEqual(meta, target) {
		t.Fatal("identical tag-sets judged different")
	}

	other := NewMetadata("text b", tags.Encode(strPtr("order_status"), []string{"track"}), time.Now())
	if TagsEqual(other, target) {
		t.Fatal("different tag-sets judged equal")
	}
}

func TestMergeTags(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	meta := NewMetadata("where is my order", tags.Encode(strPtr("order_status"), nil), now)

	patch, attached := MergeTags(meta, tags.Encode(strPtr("order_status"), []string{"track"}), now.Add(time.Hour))
	if len(attached) != 1 || attached[0] != tags.Child("order_status", "track") {
		t.Fatalf("attached = %v", attached)
	}
	if patch[MetaUpdatedAt] != "2026-03-02T10:00:00Z" {
		t.Fatalf("updated_at = %v", patch[MetaUpdatedAt])
	}
	// Already-present tags are re-written but not reported as attached.
	if b, _ := patch["INTENT,order_status"].(bool); !b {
		t.Fatal("patch dropped existing root tag")
	}

	_, attached2 := MergeTags(meta, tags.Encode(strPtr("order_status"), nil), now)
	if len(attached2) != 0 {
		t.Fatalf("re-merge attached = %v", attached2)
	}
}

func TestStripTags(t *testing.T) {
	meta := NewMetadata("p", tags.Encode(strPtr("a"), []string{"x"}), time.Now())

	out, removed, remaining := StripTags(meta, []tags.Key{tags.Child("a", "x"), tags.Root("missing")})
	if len(removed) != 1 || removed[0] != tags.Child("a", "x") {
		t.Fatalf("removed = %v", removed)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d", remaining)
	}
	if _, ok := out["SUBINTENT,a,x"]; ok {
		t.Fatal("stripped key survived")
	}

	out2, _, remaining2 := StripTags(out, []tags.Key{tags.Root("a")})
	if remaining2 != 0 {
		t.Fatalf("remaining after full strip = %d", remaining2)
	}
	if Text(out2) != "p" {
		t.Fatal("strip lost non-tag metadata")
	}
}
