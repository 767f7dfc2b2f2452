package question

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-namespace")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newStoredQuestion(schemaVersion int) *Question {
	q := CreateDefaultQuestion(uuid.New().String(), []string{"skill-1"}, schemaVersion)
	q.CreatedOnMs = 1700000000000
	q.LastUpdatedMs = 1700000000000
	return q
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-namespace", client.Namespace())
	})

	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "namespace cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestSaveAndGetQuestion(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("round-trips a question", func(t *testing.T) {
		q := newStoredQuestion(40)
		q.LinkedSkillIDs = []string{"skill-1", "skill-2"}
		require.NoError(t, client.SaveQuestion(ctx, q))

		got, err := client.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.ID, got.ID)
		assert.Equal(t, 40, got.SchemaVersion)
		assert.Equal(t, "en", got.LanguageCode)
		assert.Equal(t, []string{"skill-1", "skill-2"}, got.LinkedSkillIDs)
		assert.Equal(t, q.CreatedOnMs, got.CreatedOnMs)
		assert.Equal(t, "content", got.StateData["content"].(map[string]any)["content_id"])

		assert.True(t, mr.Exists(QuestionKey("test-namespace", q.ID)))
	})

	t.Run("save replaces the stored copy", func(t *testing.T) {
		q := newStoredQuestion(35)
		require.NoError(t, client.SaveQuestion(ctx, q))

		q.SchemaVersion = 40
		q.Version = 3
		require.NoError(t, client.SaveQuestion(ctx, q))

		got, err := client.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, got.SchemaVersion)
		assert.Equal(t, 3, got.Version)
	})

	t.Run("missing question returns redis.Nil", func(t *testing.T) {
		_, err := client.GetQuestion(ctx, "does-not-exist")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects question without id", func(t *testing.T) {
		q := newStoredQuestion(40)
		q.ID = ""
		err := client.SaveQuestion(ctx, q)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("corrupt state is reported", func(t *testing.T) {
		mr.HSet(QuestionKey("test-namespace", "corrupt"),
			"id", "corrupt",
			"question_state_data", "{not json",
			"question_state_data_schema_version", "40",
			"version", "0",
		)
		_, err := client.GetQuestion(ctx, "corrupt")
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "failed to deserialize question corrupt")
	})
}

func TestQuestionExistsAndDelete(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	q := newStoredQuestion(40)
	require.NoError(t, client.SaveQuestion(ctx, q))
	require.NoError(t, client.LinkSkill(ctx, &SkillLink{QuestionID: q.ID, SkillID: "skill-1", SkillDifficulty: 0.3}))

	exists, err := client.QuestionExists(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.DeleteQuestion(ctx, q.ID))

	exists, err = client.QuestionExists(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, mr.Exists(QuestionSkillsKey("test-namespace", q.ID)))

	ids, err := client.QuestionIDsBelowVersion(ctx, 100)
	require.NoError(t, err)
	assert.NotContains(t, ids, q.ID)

	// Deleting again is fine
	assert.NoError(t, client.DeleteQuestion(ctx, q.ID))
}

func TestListAndScanQuestions(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	ids, err := client.ListQuestionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	saved := []string{"q-b", "q-a", "q-c"}
	for _, id := range saved {
		q := newStoredQuestion(40)
		q.ID = id
		require.NoError(t, client.SaveQuestion(ctx, q))
	}
	// Lock and skill keys share the prefix and must be ignored
	_, ok, err := client.AcquireMigrationLock(ctx, "q-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, client.LinkSkill(ctx, &SkillLink{QuestionID: "q-b", SkillID: "s", SkillDifficulty: 0.5}))

	ids, err = client.ListQuestionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"q-a", "q-b", "q-c"}, ids)

	var visited []string
	err = client.ScanQuestions(ctx, func(q *Question) error {
		visited = append(visited, q.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"q-a", "q-b", "q-c"}, visited)

	stop := assert.AnError
	visited = nil
	err = client.ScanQuestions(ctx, func(q *Question) error {
		visited = append(visited, q.ID)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Len(t, visited, 1)
}

func TestQuestionIDsBelowVersion(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	for id, version := range map[string]int{"old": 27, "mid": 35, "current": 40} {
		q := newStoredQuestion(version)
		q.ID = id
		require.NoError(t, client.SaveQuestion(ctx, q))
	}

	ids, err := client.QuestionIDsBelowVersion(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "mid"}, ids)

	ids, err = client.QuestionIDsBelowVersion(ctx, 27)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSkillLinks(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	links, err := client.GetSkillLinks(ctx, "q1")
	require.NoError(t, err)
	assert.Empty(t, links)

	require.NoError(t, client.LinkSkill(ctx, &SkillLink{QuestionID: "q1", SkillID: "skill-b", SkillDescription: "B", SkillDifficulty: 0.6}))
	require.NoError(t, client.LinkSkill(ctx, &SkillLink{QuestionID: "q1", SkillID: "skill-a", SkillDescription: "A", SkillDifficulty: 0.3}))
	// Replaces the earlier link
	require.NoError(t, client.LinkSkill(ctx, &SkillLink{QuestionID: "q1", SkillID: "skill-b", SkillDescription: "B", SkillDifficulty: 0.9}))

	links, err = client.GetSkillLinks(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "skill-a", links[0].SkillID)
	assert.Equal(t, 0.9, links[1].SkillDifficulty)

	err = client.LinkSkill(ctx, &SkillLink{QuestionID: "q1", SkillID: "skill-c", SkillDifficulty: 1.5})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestMigrationLock(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	token, ok, err := client.AcquireMigrationLock(ctx, "q1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	t.Run("second acquire fails while held", func(t *testing.T) {
		_, ok, err := client.AcquireMigrationLock(ctx, "q1", 30*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release with wrong token leaves lock", func(t *testing.T) {
		released, err := client.ReleaseMigrationLock(ctx, "q1", "not-the-token")
		require.NoError(t, err)
		assert.False(t, released)
		assert.True(t, mr.Exists(QuestionLockKey("test-namespace", "q1")))
	})

	t.Run("release with token frees lock", func(t *testing.T) {
		released, err := client.ReleaseMigrationLock(ctx, "q1", token)
		require.NoError(t, err)
		assert.True(t, released)

		_, ok, err := client.AcquireMigrationLock(ctx, "q1", 30*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lock expires", func(t *testing.T) {
		_, ok, err := client.AcquireMigrationLock(ctx, "q2", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)

		_, ok, err = client.AcquireMigrationLock(ctx, "q2", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSubscribeMigrationEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("receives published events", func(t *testing.T) {
		sub, err := client.SubscribeMigrationEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		event := &MigrationEvent{
			QuestionID:  "q1",
			FromVersion: 27,
			ToVersion:   40,
			Status:      MigrationStatusApplied,
			TimestampMs: 1700000000000,
		}
		require.NoError(t, client.PublishMigrationEvent(ctx, event))

		select {
		case received := <-sub.Events():
			assert.Equal(t, event, received)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		err := client.PublishMigrationEvent(ctx, &MigrationEvent{QuestionID: "q1", Status: "done"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid migration event")
	})

	t.Run("close is idempotent and closes channels", func(t *testing.T) {
		sub, err := client.SubscribeMigrationEvents(ctx)
		require.NoError(t, err)
		assert.NotNil(t, sub.Errors())

		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok)
		case <-time.After(1 * time.Second):
			t.Fatal("events channel not closed")
		}
	})
}

func TestNamespacing(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "ns-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewClient(&redis.Options{Addr: mr.Addr()}, "ns-b")
	require.NoError(t, err)
	defer b.Close()

	q := newStoredQuestion(40)
	require.NoError(t, a.SaveQuestion(ctx, q))

	_, err = b.GetQuestion(ctx, q.ID)
	assert.True(t, IsNotFound(err))

	ids, err := b.ListQuestionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
