// Package question provides the question domain objects, their validation,
// and a Redis-backed store for them.
//
// # Overview
//
// A Question wraps one serialized question state (an untyped state blob,
// see internal/blob) together with the schema version the blob is written
// at. Stored questions are migrated forward by internal/upgrade, which uses
// the per-question migration lock and the migration events defined here.
//
// # Redis Schema
//
// All keys are namespaced so several Quill deployments can share one Redis:
//
//	Questions:       quill:{namespace}:question:{id}          (hash)
//	Migration lock:  quill:{namespace}:question:{id}:lock     (string, SET NX PX)
//	Skill links:     quill:{namespace}:question:{id}:skills   (hash skill_id -> JSON)
//	Version index:   quill:{namespace}:questions_by_schema_version (ZSET, score = schema version)
//
// Pub/Sub channel:
//
//	Migration events: quill:{namespace}:migration_events
//
// # Usage Example
//
//	client, err := question.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	q := question.CreateDefaultQuestion(uuid.New().String(), []string{"skill-1"}, 40)
//	if err := client.SaveQuestion(ctx, q); err != nil {
//		log.Fatal(err)
//	}
package question
