// Package matcher resolves free-text invoice line names to catalog ingredients.
package matcher

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Candidate is one catalog entry offered for matching.
type Candidate struct {
	ID   snowflake.ID
	Name string
}

// Match resolves a free-text name against the catalog using a staged
// strategy; the first stage producing a hit wins and no scoring is applied:
//
//  1. exact match on the trimmed name, case-sensitive
//  2. exact match, case-insensitive
//  3. bidirectional substring containment, case-insensitive, first candidate
//     in catalog order wins
//
// The substring stage is intentionally naive and order-dependent; ties are
// not disambiguated further. A nil result means no match, which is not an
// error: callers decide whether that means "create new ingredient" or "ask
// a human".
func Match(name string, catalog []Candidate) *Candidate {
	needle := strings.TrimSpace(name)
	if needle == "" || len(catalog) == 0 {
		return nil
	}

	for i := range catalog {
		if strings.TrimSpace(catalog[i].Name) == needle {
			return &catalog[i]
		}
	}

	lower := strings.ToLower(needle)
	for i := range catalog {
		if strings.ToLower(strings.TrimSpace(catalog[i].Name)) == lower {
			return &catalog[i]
		}
	}

	for i := range catalog {
		candidate := strings.ToLower(strings.TrimSpace(catalog[i].Name))
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, lower) || strings.Contains(lower, candidate) {
			return &catalog[i]
		}
	}

	return nil
}
