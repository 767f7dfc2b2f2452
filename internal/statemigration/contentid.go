package statemigration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/quill/internal/blob"
)

const (
	voiceoversPath   = "recorded_voiceovers.voiceovers_mapping"
	translationsPath = "written_translations.translations_mapping"
)

// contentIDCounter hands out content ids from next_content_id_index and
// remembers which ids it created.
type contentIDCounter struct {
	next   int
	newIDs []string
}

func newContentIDCounter(next int) *contentIDCounter {
	return &contentIDCounter{next: next}
}

func (c *contentIDCounter) generate(prefix string) string {
	id := fmt.Sprintf("%s%d", prefix, c.next)
	c.next++
	c.newIDs = append(c.newIDs, id)
	return id
}

// contentIDSuffix returns the numeric suffix of a generated content id
// ("feedback_3" -> 3). Ids like "default_outcome" have none.
func contentIDSuffix(id string) (int, bool) {
	suffix := id[strings.LastIndex(id, "_")+1:]
	if suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// maxContentIDIndex returns the largest numeric suffix among ids, or -1.
func maxContentIDIndex(ids ...[]string) int {
	highest := -1
	for _, group := range ids {
		for _, id := range group {
			if n, ok := contentIDSuffix(id); ok && n > highest {
				highest = n
			}
		}
	}
	return highest
}

// contentMappings returns the voiceovers and translations mappings of state.
func contentMappings(state map[string]any) (voiceovers, translations map[string]any, err error) {
	rv, err := blob.Map(state, "recorded_voiceovers", "")
	if err != nil {
		return nil, nil, err
	}
	voiceovers, err = blob.Map(rv, "voiceovers_mapping", "recorded_voiceovers")
	if err != nil {
		return nil, nil, err
	}
	wt, err := blob.Map(state, "written_translations", "")
	if err != nil {
		return nil, nil, err
	}
	translations, err = blob.Map(wt, "translations_mapping", "written_translations")
	if err != nil {
		return nil, nil, err
	}
	return voiceovers, translations, nil
}

// seedContentIDs adds an empty entry for every id to both mappings.
func seedContentIDs(state map[string]any, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	voiceovers, translations, err := contentMappings(state)
	if err != nil {
		return err
	}
	for _, id := range ids {
		voiceovers[id] = map[string]any{}
		translations[id] = map[string]any{}
	}
	return nil
}

// removeContentIDs deletes every id from both mappings. Ids absent from a
// mapping are ignored.
func removeContentIDs(state map[string]any, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	voiceovers, translations, err := contentMappings(state)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(voiceovers, id)
		delete(translations, id)
	}
	return nil
}

// orphanedIDs returns the ids in removed that do not appear in kept, in the
// order they appear in removed.
func orphanedIDs(removed, kept []string) []string {
	keep := make(map[string]bool, len(kept))
	for _, id := range kept {
		keep[id] = true
	}
	seen := make(map[string]bool, len(removed))
	var out []string
	for _, id := range removed {
		if keep[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
