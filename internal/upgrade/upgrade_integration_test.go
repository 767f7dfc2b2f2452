//go:build integration

package upgrade

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/quill/internal/history"
	"github.com/dyluth/quill/internal/statemigration"
	"github.com/dyluth/quill/pkg/question"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its URL.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// Two services migrating the same namespace concurrently must apply each
// question's migration exactly once.
func TestConcurrentServicesMigrateEachQuestionOnce(t *testing.T) {
	redisURL := setupRedis(t)
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	namespace := "it-" + uuid.NewString()[:8]
	client, err := question.NewClient(opts, namespace)
	require.NoError(t, err)
	defer client.Close()

	env := &testEnv{client: client}
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("q-%02d", i)
		env.saveV27(t, ids[i])
	}

	sub, err := client.SubscribeMigrationEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	var (
		mu      sync.Mutex
		applied = map[string]int{}
	)
	go func() {
		for event := range sub.Events() {
			if event.Status == question.MigrationStatusApplied {
				mu.Lock()
				applied[event.QuestionID]++
				mu.Unlock()
			}
		}
	}()

	recorder, err := history.Open(":memory:")
	require.NoError(t, err)
	defer recorder.Close()

	services := make([]*Service, 2)
	for i := range services {
		migrator, err := statemigration.New()
		require.NoError(t, err)
		services[i], err = NewService(client, migrator, 40, WithRecorder(recorder), WithConcurrency(4))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, s := range services {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MigrateAll(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		q, err := client.GetQuestion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 40, q.SchemaVersion, id)
		assert.Equal(t, 1, q.Version, "question %s saved more than once", id)
	}

	remaining, err := client.QuestionIDsBelowVersion(ctx, 40)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == len(ids)
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, n := range applied {
		assert.Equal(t, 1, n, "question %s applied %d times", id, n)
	}

	counts, err := recorder.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), counts[question.MigrationStatusApplied])
}
