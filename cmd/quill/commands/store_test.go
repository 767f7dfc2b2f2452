package commands

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dyluth/quill/pkg/question"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCommands(t *testing.T) {
	p := setupProject(t, "")

	res := p.run(t, "store", "put", p.examplePath())
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Saved question example-question (schema v27)")
	assert.True(t, p.mr.Exists(question.QuestionKey("cli-test", "example-question")))

	t.Run("list", func(t *testing.T) {
		res := p.run(t, "store", "list")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Questions in namespace 'cli-test'")
		assert.Contains(t, res.stdout, "TextInput")
		assert.Contains(t, res.stdout, "1 question found")

		res = p.run(t, "store", "list", "--schema-version", "40")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "No questions found")
	})

	t.Run("list rejects bad filters", func(t *testing.T) {
		res := p.run(t, "store", "list", "-o", "yaml")
		require.Error(t, res.err)
		assert.Equal(t, "invalid output format", res.err.Error())

		res = p.run(t, "store", "list", "--since", "yesterday")
		require.Error(t, res.err)
		assert.Equal(t, "invalid time filter", res.err.Error())
	})

	t.Run("migrate requires an id or --all", func(t *testing.T) {
		res := p.run(t, "store", "migrate")
		require.Error(t, res.err)
		assert.Equal(t, "nothing to migrate", res.err.Error())

		res = p.run(t, "store", "migrate", "example-question", "--all")
		require.Error(t, res.err)
	})

	t.Run("migrate one question by short id", func(t *testing.T) {
		res := p.run(t, "store", "migrate", "exampl")
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, "Migrated example-question from v27 to v40 (13 steps)")

		res = p.run(t, "store", "migrate", "example-question")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Skipped example-question: already at target version")
	})

	t.Run("get", func(t *testing.T) {
		res := p.run(t, "store", "get", "example-question")
		require.NoError(t, res.err)

		var detail struct {
			Question map[string]any `json:"question"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &detail))
		assert.Equal(t, float64(40), detail.Question["question_state_data_schema_version"])
		assert.Equal(t, float64(1), detail.Question["version"])
	})

	t.Run("get unknown id", func(t *testing.T) {
		res := p.run(t, "store", "get", "missing-question")
		require.Error(t, res.err)
		assert.Equal(t, "question with ID 'missing-question' not found", res.err.Error())
	})

	t.Run("history", func(t *testing.T) {
		res := p.run(t, "history", "example-question", "-o", "jsonl")
		require.NoError(t, res.err)

		lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
		require.Len(t, lines, 2)
		var first, second map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
		assert.Equal(t, "applied", first["status"])
		assert.Equal(t, float64(27), first["from_version"])
		assert.Equal(t, "skipped", second["status"])

		res = p.run(t, "history", "example-question")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "v27→v40")

		res = p.run(t, "history")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "applied  1")
		assert.Contains(t, res.stdout, "skipped  1")
		assert.Contains(t, res.stdout, "failed   0")

		res = p.run(t, "history", "unknown")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "No migration attempts recorded for question 'unknown'")
	})

	t.Run("watch waits for a migrated question", func(t *testing.T) {
		res := p.run(t, "watch", "example-question", "--timeout", "2s")
		require.NoError(t, res.err, res.stderr)
		assert.Contains(t, res.stdout, "Question example-question is at v40")
	})

	t.Run("delete", func(t *testing.T) {
		res := p.run(t, "store", "delete", "example-question")
		require.NoError(t, res.err)
		assert.False(t, p.mr.Exists(question.QuestionKey("cli-test", "example-question")))
	})
}

func TestStoreMigrateAll(t *testing.T) {
	p := setupProject(t, "migration:\n  concurrency: 2\n")
	client := p.client(t)
	ctx := context.Background()

	for _, id := range []string{"q-one", "q-two", "q-three"} {
		q := readQuestion(t, p.examplePath())
		q.ID = id
		require.NoError(t, client.SaveQuestion(ctx, q))
	}
	broken := readQuestion(t, p.examplePath())
	broken.ID = "q-broken"
	delete(broken.StateData, "content_ids_to_audio_translations")
	require.NoError(t, client.SaveQuestion(ctx, broken))

	res := p.run(t, "store", "migrate", "--all")
	require.Error(t, res.err)
	assert.Equal(t, "1 question(s) failed to migrate", res.err.Error())
	assert.Contains(t, res.stdout, "3 applied, 0 skipped, 1 failed")
	assert.Contains(t, res.stderr, "q-broken")

	stored, err := client.GetQuestion(ctx, "q-broken")
	require.NoError(t, err)
	assert.Equal(t, 27, stored.SchemaVersion)
}

func TestStoreRedisUnavailable(t *testing.T) {
	p := setupProject(t, "")
	p.mr.Close()

	res := p.run(t, "store", "list")
	require.Error(t, res.err)
	assert.Equal(t, "Redis connection failed", res.err.Error())
}

func (p *testProject) client(t *testing.T) *question.Client {
	t.Helper()
	client, err := question.NewClient(&redis.Options{Addr: p.mr.Addr()}, "cli-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStoreMigrateServesMetrics(t *testing.T) {
	p := setupProject(t, "")
	require.NoError(t, p.run(t, "store", "put", p.examplePath()).err)

	res := p.run(t, "store", "migrate", "--all", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "1 applied, 0 skipped, 0 failed")

	res = p.run(t, "store", "migrate", "--all", "--metrics-addr", "not-an-address")
	require.Error(t, res.err)
	assert.Equal(t, "cannot start metrics server", res.err.Error())
}
