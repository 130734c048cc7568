package matcher

import (
	"testing"

	"github.com/bwmarrin/snowflake"
)

func testCatalog(t *testing.T, names ...string) []Candidate {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	catalog := make([]Candidate, 0, len(names))
	for _, name := range names {
		catalog = append(catalog, Candidate{ID: node.Generate(), Name: name})
	}
	return catalog
}

func TestMatchExactBeatsSubstring(t *testing.T) {
	catalog := testCatalog(t, "Olive Oil Extra", "Olive Oil")

	hit := Match("Olive Oil", catalog)
	if hit == nil {
		t.Fatal("expected a match")
	}
	if hit.Name != "Olive Oil" {
		t.Fatalf("exact match must win over substring, got %q", hit.Name)
	}
}

func TestMatchCaseInsensitiveBeatsSubstring(t *testing.T) {
	catalog := testCatalog(t, "Olive Oil Extra", "OLIVE OIL")

	hit := Match("olive oil", catalog)
	if hit == nil {
		t.Fatal("expected a match")
	}
	if hit.Name != "OLIVE OIL" {
		t.Fatalf("case-insensitive exact must win over substring, got %q", hit.Name)
	}
}

func TestMatchSubstringBidirectional(t *testing.T) {
	catalog := testCatalog(t, "Flour")

	// needle contains candidate
	if hit := Match("Organic Flour 1kg", catalog); hit == nil || hit.Name != "Flour" {
		t.Fatalf("expected substring hit on %q", "Organic Flour 1kg")
	}
	// candidate contains needle
	catalog = testCatalog(t, "Brown Sugar")
	if hit := Match("sugar", catalog); hit == nil || hit.Name != "Brown Sugar" {
		t.Fatal("expected substring hit on candidate containing needle")
	}
}

func TestMatchSubstringFirstInCatalogOrderWins(t *testing.T) {
	catalog := testCatalog(t, "Rice Flour", "Wheat Flour")

	hit := Match("flour", catalog)
	if hit == nil {
		t.Fatal("expected a match")
	}
	if hit.Name != "Rice Flour" {
		t.Fatalf("first candidate in catalog order must win, got %q", hit.Name)
	}
}

func TestMatchTrimsNeedle(t *testing.T) {
	catalog := testCatalog(t, "Milk")

	if hit := Match("  Milk  ", catalog); hit == nil || hit.Name != "Milk" {
		t.Fatal("expected trimmed exact match")
	}
}

func TestMatchNone(t *testing.T) {
	catalog := testCatalog(t, "Flour", "Sugar")

	if hit := Match("saffron", catalog); hit != nil {
		t.Fatalf("expected no match, got %q", hit.Name)
	}
}

func TestMatchEmptyCatalog(t *testing.T) {
	if hit := Match("anything", nil); hit != nil {
		t.Fatal("empty catalog must yield no match")
	}
}

func TestMatchEmptyName(t *testing.T) {
	catalog := testCatalog(t, "Flour")

	if hit := Match("   ", catalog); hit != nil {
		t.Fatal("blank needle must yield no match")
	}
}
