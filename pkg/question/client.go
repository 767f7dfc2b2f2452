package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes the lock only if it still holds the caller's
// token, so an expired lock re-acquired by another worker is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client provides namespaced Redis operations for stored questions.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient creates a new question store client for the specified namespace.
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Namespace returns the namespace all keys of this client live under.
func (c *Client) Namespace() string {
	return c.namespace
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveQuestion writes q, replacing any stored copy, and indexes it by
// schema version. The hash and the index entry are written in one MULTI.
func (c *Client) SaveQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		return validationErrorf("question id cannot be empty")
	}
	if q.StateData == nil {
		return validationErrorf("question %s has no state data", q.ID)
	}

	hash, err := QuestionToHash(q)
	if err != nil {
		return fmt.Errorf("failed to serialize question: %w", err)
	}

	key := QuestionKey(c.namespace, q.ID)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, hash)
		pipe.ZAdd(ctx, SchemaVersionIndexKey(c.namespace), redis.Z{
			Score:  SchemaVersionScore(q.SchemaVersion),
			Member: q.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write question to Redis: %w", err)
	}

	return nil
}

// GetQuestion retrieves a question by id.
// Returns (nil, redis.Nil) if the question doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetQuestion(ctx context.Context, questionID string) (*Question, error) {
	hashData, err := c.rdb.HGetAll(ctx, QuestionKey(c.namespace, questionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read question from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	q, err := HashToQuestion(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize question %s: %w", questionID, err)
	}

	return q, nil
}

// QuestionExists checks if a question exists without fetching it.
func (c *Client) QuestionExists(ctx context.Context, questionID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, QuestionKey(c.namespace, questionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check question existence: %w", err)
	}
	return exists > 0, nil
}

// DeleteQuestion removes a question, its skill links and its index entry.
// Deleting a missing question is not an error.
func (c *Client) DeleteQuestion(ctx context.Context, questionID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, QuestionKey(c.namespace, questionID), QuestionSkillsKey(c.namespace, questionID))
		pipe.ZRem(ctx, SchemaVersionIndexKey(c.namespace), questionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

// ListQuestionIDs returns the ids of every stored question, sorted.
func (c *Client) ListQuestionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := c.rdb.Scan(ctx, 0, QuestionKeyPattern(c.namespace), 100).Iterator()
	for iter.Next(ctx) {
		if id, ok := questionIDFromKey(c.namespace, iter.Val()); ok {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan question keys: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// ScanQuestions calls fn for every stored question in id order. Iteration
// stops at the first error returned by fn.
func (c *Client) ScanQuestions(ctx context.Context, fn func(*Question) error) error {
	ids, err := c.ListQuestionIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		q, err := c.GetQuestion(ctx, id)
		if IsNotFound(err) {
			// Deleted since the scan
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(q); err != nil {
			return err
		}
	}
	return nil
}

// QuestionIDsBelowVersion returns the ids of questions whose state schema
// version is lower than version, lowest version first.
func (c *Client) QuestionIDsBelowVersion(ctx context.Context, version int) ([]string, error) {
	ids, err := c.rdb.ZRangeByScore(ctx, SchemaVersionIndexKey(c.namespace), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(SchemaVersionScore(version), 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version index: %w", err)
	}
	return ids, nil
}

// LinkSkill records (or replaces) a question's link to one skill.
func (c *Client) LinkSkill(ctx context.Context, link *SkillLink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid skill link: %w", err)
	}

	linkJSON, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal skill link: %w", err)
	}

	key := QuestionSkillsKey(c.namespace, link.QuestionID)
	if err := c.rdb.HSet(ctx, key, link.SkillID, string(linkJSON)).Err(); err != nil {
		return fmt.Errorf("failed to write skill link to Redis: %w", err)
	}
	return nil
}

// GetSkillLinks returns every skill link of a question, ordered by skill id.
// Returns an empty slice if there are none.
func (c *Client) GetSkillLinks(ctx context.Context, questionID string) ([]SkillLink, error) {
	raw, err := c.rdb.HGetAll(ctx, QuestionSkillsKey(c.namespace, questionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read skill links from Redis: %w", err)
	}

	links := make([]SkillLink, 0, len(raw))
	for skillID, value := range raw {
		var link SkillLink
		if err := json.Unmarshal([]byte(value), &link); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skill link %s: %w", skillID, err)
		}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].SkillID < links[j].SkillID })
	return links, nil
}

// AcquireMigrationLock tries to take the per-question migration lock for ttl.
// It returns the token needed to release the lock, or acquired == false if
// another worker holds it.
func (c *Client) AcquireMigrationLock(ctx context.Context, questionID string, ttl time.Duration) (token string, acquired bool, err error) {
	token = uuid.New().String()
	acquired, err = c.rdb.SetNX(ctx, QuestionLockKey(c.namespace, questionID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseMigrationLock releases the lock if it is still held with token.
// Returns false if the lock had expired or been taken over.
func (c *Client) ReleaseMigrationLock(ctx context.Context, questionID, token string) (bool, error) {
	n, err := releaseLockScript.Run(ctx, c.rdb, []string{QuestionLockKey(c.namespace, questionID)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release migration lock: %w", err)
	}
	return n == 1, nil
}

// PublishMigrationEvent publishes e to the namespace's migration events channel.
func (c *Client) PublishMigrationEvent(ctx context.Context, e *MigrationEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid migration event: %w", err)
	}

	eventJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal migration event: %w", err)
	}

	if err := c.rdb.Publish(ctx, MigrationEventsChannel(c.namespace), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish migration event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to migration events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *MigrationEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of migration events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *MigrationEvent {
	return s.events
}

// Errors returns the channel of subscription errors. Malformed messages are
// reported here and skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeMigrationEvents subscribes to migration events for this namespace.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: events published while nobody is subscribed are lost.
func (c *Client) SubscribeMigrationEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, MigrationEventsChannel(c.namespace))

	// Wait for the subscription to be confirmed so events published right
	// after this call returns are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to migration events: %w", err)
	}

	eventsChan := make(chan *MigrationEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event MigrationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal migration event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
