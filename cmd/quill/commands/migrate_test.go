package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/pkg/question"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readQuestion(t *testing.T, path string) *question.Question {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, blob.Unmarshal(data, &doc))
	q, err := question.FromDict(doc)
	require.NoError(t, err)
	return q
}

func TestMigrateCommand(t *testing.T) {
	p := setupProject(t, "")

	t.Run("writes the migrated document", func(t *testing.T) {
		out := filepath.Join(p.dir, "migrated.json")
		res := p.run(t, "migrate", p.examplePath(), "--out", out)
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, "Migrated example-question from v27 to v40 (13 steps)")

		q := readQuestion(t, out)
		assert.Equal(t, 40, q.SchemaVersion)
		assert.Contains(t, q.StateData, "recorded_voiceovers")
		assert.NotContains(t, q.StateData, "content_ids_to_audio_translations")
	})

	t.Run("prints to stdout without --out", func(t *testing.T) {
		res := p.run(t, "migrate", p.examplePath(), "--to", "28")
		require.NoError(t, res.err)

		var doc map[string]any
		require.NoError(t, blob.Unmarshal([]byte(res.stdout), &doc))
		q, err := question.FromDict(doc)
		require.NoError(t, err)
		assert.Equal(t, 28, q.SchemaVersion)
	})

	t.Run("diff", func(t *testing.T) {
		res := p.run(t, "migrate", p.examplePath(), "--to", "28", "--diff")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "--- v27\n+++ v28\n")
		assert.Contains(t, res.stdout, "content_ids_to_audio_translations")
		assert.Contains(t, res.stdout, "recorded_voiceovers")
	})

	t.Run("already current", func(t *testing.T) {
		out := filepath.Join(p.dir, "current.json")
		require.NoError(t, p.run(t, "migrate", p.examplePath(), "--out", out).err)

		res := p.run(t, "migrate", out, "--diff")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "already at v40")
	})

	t.Run("target out of range", func(t *testing.T) {
		res := p.run(t, "migrate", p.examplePath(), "--to", "41")
		require.Error(t, res.err)
		assert.Equal(t, "invalid target version", res.err.Error())
		assert.Contains(t, res.stderr, "--to must be between 27 and 40, got 41")
	})

	t.Run("malformed state reports the path", func(t *testing.T) {
		q := readQuestion(t, p.examplePath())
		delete(q.StateData, "content_ids_to_audio_translations")
		path := writeQuestion(t, p.dir, "broken.json", q)

		res := p.run(t, "migrate", path)
		require.Error(t, res.err)
		assert.Equal(t, "migration failed", res.err.Error())
		assert.Contains(t, res.stderr, "content_ids_to_audio_translations")
		assert.Contains(t, res.stderr, "Stopped at: v27")
	})

	t.Run("not a question document", func(t *testing.T) {
		path := filepath.Join(p.dir, "list.json")
		require.NoError(t, os.WriteFile(path, []byte("[1, 2]"), 0644))

		res := p.run(t, "migrate", path)
		require.Error(t, res.err)
		assert.Equal(t, "invalid question file", res.err.Error())
	})
}

func TestValidateCommand(t *testing.T) {
	p := setupProject(t, "")
	migrated := filepath.Join(p.dir, "migrated.json")
	require.NoError(t, p.run(t, "migrate", p.examplePath(), "--out", migrated).err)

	t.Run("migrated example is valid", func(t *testing.T) {
		res := p.run(t, "validate", migrated)
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, "is valid (schema v40, 8 content ids)")
	})

	t.Run("missing hint", func(t *testing.T) {
		q := readQuestion(t, migrated)
		q.StateData["interaction"].(map[string]any)["hints"] = []any{}
		path := writeQuestion(t, p.dir, "no-hints.json", q)

		res := p.run(t, "validate", path)
		require.Error(t, res.err)
		assert.Equal(t, "question is invalid", res.err.Error())
		assert.Contains(t, res.stderr, "Expected the question to have at least one hint")
	})

	t.Run("partial skips the id check", func(t *testing.T) {
		q := readQuestion(t, migrated)
		q.ID = ""
		path := writeQuestion(t, p.dir, "unsaved.json", q)

		res := p.run(t, "validate", path)
		require.Error(t, res.err)
		assert.Contains(t, res.stderr, "Expected ID to be a non-empty string")

		res = p.run(t, "validate", path, "--partial")
		require.NoError(t, res.err, res.stderr)
	})

	t.Run("orphaned content id", func(t *testing.T) {
		q := readQuestion(t, migrated)
		mapping := q.StateData["written_translations"].(map[string]any)["translations_mapping"].(map[string]any)
		mapping["stale_99"] = map[string]any{}
		path := writeQuestion(t, p.dir, "orphaned.json", q)

		res := p.run(t, "validate", path)
		require.Error(t, res.err)
		assert.Equal(t, "content ids are inconsistent", res.err.Error())
		assert.Contains(t, res.stderr, `mapping entry "stale_99" is not referenced by any content`)
	})

	t.Run("pre-snapshot version cannot be validated", func(t *testing.T) {
		res := p.run(t, "validate", p.examplePath())
		require.Error(t, res.err)
		assert.Equal(t, "validation could not run", res.err.Error())
		assert.Contains(t, res.stderr, "quill migrate")
		assert.Contains(t, res.stderr, "older than the oldest interaction registry snapshot (v36)")
	})

	t.Run("v35 document cannot be validated", func(t *testing.T) {
		v35 := filepath.Join(p.dir, "v35.json")
		require.NoError(t, p.run(t, "migrate", p.examplePath(), "--to", "35", "--out", v35).err)

		res := p.run(t, "validate", v35)
		require.Error(t, res.err)
		assert.Equal(t, "validation could not run", res.err.Error())
	})

	t.Run("oldest snapshot version is validated", func(t *testing.T) {
		v36 := filepath.Join(p.dir, "v36.json")
		require.NoError(t, p.run(t, "migrate", p.examplePath(), "--to", "36", "--out", v36).err)

		res := p.run(t, "validate", v36)
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, "is valid (schema v36")
	})
}

func writeQuestion(t *testing.T, dir, name string, q *question.Question) string {
	t.Helper()
	data, err := json.Marshal(q.ToDict())
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
