package inventory

import (
	"path/filepath"

	"github.com/dyluth/quill/pkg/question"
)

// Criteria defines filtering criteria for stored questions.
// All filters are ANDed together - a question must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix ms on last_updated, 0 = no filter
	UntilTimestampMs int64  // Unix ms on last_updated, 0 = no filter
	IDGlob           string // Glob pattern for question id, empty = no filter
	LanguageCode     string // Exact match, empty = no filter
	SchemaVersion    int    // Exact match, 0 = no filter
	InteractionID    string // Exact match on the state's interaction id, empty = no filter
}

// Matches returns true if the question matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(q *question.Question) bool {
	if c.SinceTimestampMs > 0 && q.LastUpdatedMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && q.LastUpdatedMs > c.UntilTimestampMs {
		return false
	}

	if c.IDGlob != "" {
		matched, err := filepath.Match(c.IDGlob, q.ID)
		if err != nil || !matched {
			return false
		}
	}

	if c.LanguageCode != "" && q.LanguageCode != c.LanguageCode {
		return false
	}
	if c.SchemaVersion != 0 && q.SchemaVersion != c.SchemaVersion {
		return false
	}
	if c.InteractionID != "" && interactionID(q) != c.InteractionID {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.IDGlob != "" ||
		c.LanguageCode != "" ||
		c.SchemaVersion != 0 ||
		c.InteractionID != ""
}

// interactionID returns the state's interaction id, or "" when unset or
// malformed.
func interactionID(q *question.Question) string {
	interaction, ok := q.StateData["interaction"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := interaction["id"].(string)
	return id
}
