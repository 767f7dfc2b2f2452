package question

import (
	"fmt"
	"strings"
)

// Redis key pattern helpers
//
// Key pattern: quill:{namespace}:{entity}:{id}
// Channel pattern: quill:{namespace}:{event_type}_events

// QuestionKey returns the Redis key for a question hash.
// Pattern: quill:{namespace}:question:{question_id}
func QuestionKey(namespace, questionID string) string {
	return fmt.Sprintf("quill:%s:question:%s", namespace, questionID)
}

// QuestionLockKey returns the Redis key for a question's migration lock.
// Pattern: quill:{namespace}:question:{question_id}:lock
func QuestionLockKey(namespace, questionID string) string {
	return QuestionKey(namespace, questionID) + ":lock"
}

// QuestionSkillsKey returns the Redis key for a question's skill links hash.
// Pattern: quill:{namespace}:question:{question_id}:skills
func QuestionSkillsKey(namespace, questionID string) string {
	return QuestionKey(namespace, questionID) + ":skills"
}

// QuestionKeyPattern returns the SCAN pattern matching every question key
// (and, with it, the lock and skills keys, which callers filter out).
func QuestionKeyPattern(namespace string) string {
	return fmt.Sprintf("quill:%s:question:*", namespace)
}

// SchemaVersionIndexKey returns the Redis key for the ZSET indexing question
// ids by state schema version.
// Pattern: quill:{namespace}:questions_by_schema_version
func SchemaVersionIndexKey(namespace string) string {
	return fmt.Sprintf("quill:%s:questions_by_schema_version", namespace)
}

// MigrationEventsChannel returns the Pub/Sub channel for migration events.
// Pattern: quill:{namespace}:migration_events
func MigrationEventsChannel(namespace string) string {
	return fmt.Sprintf("quill:%s:migration_events", namespace)
}

// questionIDFromKey extracts the question id from a question hash key. Lock
// and skills keys yield ok == false.
func questionIDFromKey(namespace, key string) (string, bool) {
	id, found := strings.CutPrefix(key, QuestionKey(namespace, ""))
	if !found || id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}

// SchemaVersionScore converts a state schema version to a ZSET score.
func SchemaVersionScore(version int) float64 {
	return float64(version)
}

// SchemaVersionFromScore converts a ZSET score back to a schema version.
func SchemaVersionFromScore(score float64) int {
	return int(score)
}
