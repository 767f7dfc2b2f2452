package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/quill/pkg/question"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*question.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := question.NewClient(&redis.Options{Addr: mr.Addr()}, "test-namespace")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func storeQuestion(t *testing.T, client *question.Client, id string, schemaVersion int, updatedMs int64, mutate func(*question.Question)) *question.Question {
	t.Helper()
	q := question.CreateDefaultQuestion(id, []string{"skill-1"}, schemaVersion)
	q.CreatedOnMs = updatedMs
	q.LastUpdatedMs = updatedMs
	if mutate != nil {
		mutate(q)
	}
	require.NoError(t, client.SaveQuestion(context.Background(), q))
	return q
}

func TestCriteria(t *testing.T) {
	q := question.CreateDefaultQuestion("algebra-1", []string{"s"}, 38)
	q.LastUpdatedMs = 2000
	q.StateData["interaction"].(map[string]any)["id"] = "AlgebraicExpressionInput"

	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"empty matches all", Criteria{}, true},
		{"since excludes older", Criteria{SinceTimestampMs: 3000}, false},
		{"until includes equal", Criteria{UntilTimestampMs: 2000}, true},
		{"id glob", Criteria{IDGlob: "algebra-*"}, true},
		{"id glob miss", Criteria{IDGlob: "geo*"}, false},
		{"bad glob never matches", Criteria{IDGlob: "["}, false},
		{"language", Criteria{LanguageCode: "hi"}, false},
		{"schema version", Criteria{SchemaVersion: 38}, true},
		{"interaction", Criteria{InteractionID: "AlgebraicExpressionInput"}, true},
		{"interaction miss", Criteria{InteractionID: "TextInput"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(q))
		})
	}

	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{SchemaVersion: 40}).HasFilters())
}

func TestListQuestions(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store - default format", func(t *testing.T) {
		client, _ := setupTestClient(t)

		var out, warn bytes.Buffer
		require.NoError(t, ListQuestions(ctx, client, OutputFormatDefault, nil, &out, &warn))
		assert.Contains(t, out.String(), "No questions found in namespace 'test-namespace'")
	})

	t.Run("table lists questions oldest first", func(t *testing.T) {
		client, _ := setupTestClient(t)
		now := time.Now().UnixMilli()
		storeQuestion(t, client, "newer", 40, now, nil)
		storeQuestion(t, client, "older", 27, now-int64(2*time.Hour/time.Millisecond), func(q *question.Question) {
			q.StateData["content"].(map[string]any)["html"] = "<p>What is <b>2 + 2</b>?</p>"
		})

		var out, warn bytes.Buffer
		require.NoError(t, ListQuestions(ctx, client, OutputFormatDefault, nil, &out, &warn))

		output := out.String()
		assert.Contains(t, output, "Questions in namespace 'test-namespace'")
		assert.Contains(t, output, "2 questions found")
		assert.Contains(t, output, "What is 2 + 2 ?")
		assert.Contains(t, output, "2 hours ago")
		assert.Less(t, strings.Index(output, "older"), strings.Index(output, "newer"))
		assert.Empty(t, warn.String())
	})

	t.Run("jsonl with filters", func(t *testing.T) {
		client, _ := setupTestClient(t)
		storeQuestion(t, client, "q-27", 27, 1000, nil)
		storeQuestion(t, client, "q-40", 40, 2000, nil)

		var out, warn bytes.Buffer
		err := ListQuestions(ctx, client, OutputFormatJSONL, &Criteria{SchemaVersion: 27}, &out, &warn)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 1)
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &doc))
		assert.Equal(t, "q-27", doc["id"])
	})

	t.Run("skips malformed questions with a warning", func(t *testing.T) {
		client, mr := setupTestClient(t)
		storeQuestion(t, client, "good", 40, 1000, nil)
		mr.HSet(question.QuestionKey("test-namespace", "bad"), "id", "bad", "question_state_data", "{not json")

		var out, warn bytes.Buffer
		require.NoError(t, ListQuestions(ctx, client, OutputFormatJSONL, nil, &out, &warn))
		assert.Contains(t, out.String(), `"id":"good"`)
		assert.Contains(t, warn.String(), "Skipping malformed question: id=bad")
	})

	t.Run("unknown format", func(t *testing.T) {
		client, _ := setupTestClient(t)
		var out, warn bytes.Buffer
		err := ListQuestions(ctx, client, OutputFormat("xml"), nil, &out, &warn)
		assert.EqualError(t, err, "unknown output format: xml")
	})
}

func TestGetQuestion(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestClient(t)
	storeQuestion(t, client, "q1", 40, 1000, nil)
	require.NoError(t, client.LinkSkill(ctx, &question.SkillLink{
		QuestionID: "q1", SkillID: "skill-1", SkillDescription: "Addition", SkillDifficulty: 0.3,
	}))

	t.Run("prints question with skill links", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, GetQuestion(ctx, client, "q1", &out))

		var detail Detail
		require.NoError(t, json.Unmarshal(out.Bytes(), &detail))
		assert.Equal(t, "q1", detail.Question["id"])
		assert.Equal(t, int64(1000), detail.LastUpdatedMs)
		assert.Equal(t, []string{"skill-1"}, detail.SkillLinks.SkillIDs)
		assert.Equal(t, []float64{0.3}, detail.SkillLinks.SkillDifficulties)
	})

	t.Run("not found", func(t *testing.T) {
		var out bytes.Buffer
		err := GetQuestion(ctx, client, "missing", &out)
		assert.True(t, IsNotFound(err))
		assert.EqualError(t, err, "question with ID 'missing' not found")
	})
}

func TestFormatContent(t *testing.T) {
	q := question.CreateDefaultQuestion("q", nil, 40)
	assert.Equal(t, "-", formatContent(q))

	q.StateData["content"].(map[string]any)["html"] = "<p>" + strings.Repeat("a", 50) + "</p>"
	assert.Equal(t, strings.Repeat("a", 37)+"...", formatContent(q))
}
