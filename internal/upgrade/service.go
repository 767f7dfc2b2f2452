// Package upgrade migrates stored questions to the configured state schema
// version.
//
// Each question is migrated under its Redis migration lock, so concurrent
// workers never advance the same question twice. Every attempt, including
// skipped ones, is written to the history ledger and published as a
// migration event.
package upgrade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/history"
	"github.com/dyluth/quill/internal/statemigration"
	"github.com/dyluth/quill/pkg/question"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the subset of question.Client the service needs.
type Store interface {
	GetQuestion(ctx context.Context, questionID string) (*question.Question, error)
	SaveQuestion(ctx context.Context, q *question.Question) error
	QuestionIDsBelowVersion(ctx context.Context, version int) ([]string, error)
	AcquireMigrationLock(ctx context.Context, questionID string, ttl time.Duration) (string, bool, error)
	ReleaseMigrationLock(ctx context.Context, questionID, token string) (bool, error)
	PublishMigrationEvent(ctx context.Context, e *question.MigrationEvent) error
}

// Recorder persists migration attempts.
type Recorder interface {
	Record(ctx context.Context, e *question.MigrationEvent) (*history.Record, error)
}

// Skip reasons reported in Result.Reason.
const (
	ReasonUpToDate = "already at target version"
	ReasonLocked   = "migration lock held by another worker"
)

// Result describes one MigrateQuestion call.
type Result struct {
	QuestionID   string
	FromVersion  int
	ToVersion    int // Version the stored question is at afterwards
	StepsApplied int
	Status       question.MigrationStatus
	Reason       string // Set for skipped questions
	Err          error  // Set for failed questions
}

// Summary aggregates a MigrateAll run.
type Summary struct {
	Results []*Result
	Applied int
	Failed  int
	Skipped int
}

// Service migrates stored questions.
type Service struct {
	store       Store
	migrator    *statemigration.Migrator
	recorder    Recorder
	logger      *zap.Logger
	target      int
	concurrency int
	lockTTL     time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the history ledger. Without one, attempts are only
// published as events.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithConcurrency bounds how many questions MigrateAll migrates at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithLockTTL sets the lifetime of the per-question migration lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) { s.lockTTL = ttl }
}

// NewService creates a service migrating questions in store to target.
func NewService(store Store, migrator *statemigration.Migrator, target int, opts ...Option) (*Service, error) {
	if store == nil || migrator == nil {
		return nil, fmt.Errorf("store and migrator are required")
	}
	if target < statemigration.EarliestVersion() || target > statemigration.LatestVersion() {
		return nil, fmt.Errorf("target version %d outside supported range %d-%d",
			target, statemigration.EarliestVersion(), statemigration.LatestVersion())
	}

	s := &Service{
		store:       store,
		migrator:    migrator,
		logger:      zap.NewNop(),
		target:      target,
		concurrency: 4,
		lockTTL:     5 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", s.concurrency)
	}
	return s, nil
}

// Target returns the schema version questions are migrated to.
func (s *Service) Target() int {
	return s.target
}

// MigrateQuestion migrates one stored question to the target version.
//
// The returned error is non-nil only when the attempt failed; in that case
// the stored question is left unchanged and the Result is still returned.
// A question that is already current, or locked by another worker, yields a
// skipped Result and a nil error.
func (s *Service) MigrateQuestion(ctx context.Context, questionID string) (*Result, error) {
	logger := s.logger.With(zap.String("question_id", questionID))

	token, acquired, err := s.store.AcquireMigrationLock(ctx, questionID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		result := &Result{QuestionID: questionID, Status: question.MigrationStatusSkipped, Reason: ReasonLocked}
		s.report(ctx, logger, result)
		return result, nil
	}
	defer func() {
		// The lock must be released even if ctx was cancelled mid-migration
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := s.store.ReleaseMigrationLock(releaseCtx, questionID, token); err != nil {
			logger.Warn("Failed to release migration lock", zap.Error(err))
		}
	}()

	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		if question.IsNotFound(err) {
			return nil, fmt.Errorf("question %s not found: %w", questionID, err)
		}
		return nil, err
	}

	result := &Result{QuestionID: questionID, FromVersion: q.SchemaVersion, ToVersion: q.SchemaVersion}
	if q.SchemaVersion >= s.target {
		result.Status = question.MigrationStatusSkipped
		result.Reason = ReasonUpToDate
		s.report(ctx, logger, result)
		return result, nil
	}

	vs := &statemigration.VersionedState{SchemaVersion: q.SchemaVersion, State: blob.DeepCopyMap(q.StateData)}
	applied, err := s.migrator.MigrateToVersion(vs, s.target)
	result.StepsApplied = applied
	if err != nil {
		// Nothing is saved: a partly migrated question is never stored
		result.Status = question.MigrationStatusFailed
		result.Err = err
		s.report(ctx, logger, result)
		return result, fmt.Errorf("failed to migrate question %s: %w", questionID, err)
	}

	q.UpdateQuestionStateData(vs.State)
	q.SchemaVersion = vs.SchemaVersion
	q.Version++
	q.LastUpdatedMs = s.now().UnixMilli()
	if err := s.store.SaveQuestion(ctx, q); err != nil {
		result.Status = question.MigrationStatusFailed
		result.Err = err
		s.report(ctx, logger, result)
		return result, fmt.Errorf("failed to save migrated question %s: %w", questionID, err)
	}

	result.Status = question.MigrationStatusApplied
	result.ToVersion = vs.SchemaVersion
	s.report(ctx, logger, result)
	return result, nil
}

// MigrateAll migrates every stored question below the target version,
// at most the configured concurrency at a time. A failing question does not
// stop the others; all failures are returned together.
func (s *Service) MigrateAll(ctx context.Context) (*Summary, error) {
	ids, err := s.store.QuestionIDsBelowVersion(ctx, s.target)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Migrating stored questions",
		zap.Int("count", len(ids)),
		zap.Int("target_version", s.target),
		zap.Int("concurrency", s.concurrency))

	var (
		mu      sync.Mutex
		summary = &Summary{Results: make([]*Result, 0, len(ids))}
		errs    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			result, err := s.MigrateQuestion(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			errs = multierr.Append(errs, err)
			if result == nil {
				return nil
			}
			summary.Results = append(summary.Results, result)
			switch result.Status {
			case question.MigrationStatusApplied:
				summary.Applied++
			case question.MigrationStatusFailed:
				summary.Failed++
			case question.MigrationStatusSkipped:
				summary.Skipped++
			}
			return nil
		})
	}
	// Only context cancellation is returned by the workers
	if err := g.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}

	return summary, errs
}

// report records, publishes, logs and counts one attempt. Ledger and
// publish failures are logged; the migration outcome stands.
func (s *Service) report(ctx context.Context, logger *zap.Logger, r *Result) {
	questionMigrationsTotal.WithLabelValues(string(r.Status)).Inc()

	event := &question.MigrationEvent{
		QuestionID:  r.QuestionID,
		FromVersion: r.FromVersion,
		ToVersion:   r.ToVersion,
		Status:      r.Status,
		TimestampMs: s.now().UnixMilli(),
	}
	if r.Err != nil {
		event.Error = r.Err.Error()
	} else if r.Reason != "" {
		event.Error = r.Reason
	}

	fields := []zap.Field{
		zap.String("event_type", "question_migration"),
		zap.String("status", string(r.Status)),
		zap.Int("from_version", r.FromVersion),
		zap.Int("to_version", r.ToVersion),
		zap.Int("steps_applied", r.StepsApplied),
	}
	switch r.Status {
	case question.MigrationStatusFailed:
		logger.Error("Question migration failed", append(fields, zap.Error(r.Err))...)
	case question.MigrationStatusSkipped:
		logger.Debug("Question migration skipped", append(fields, zap.String("reason", r.Reason))...)
	default:
		logger.Info("Question migrated", fields...)
	}

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, event); err != nil {
			logger.Warn("Failed to record migration history", zap.Error(err))
		}
	}
	if err := s.store.PublishMigrationEvent(ctx, event); err != nil {
		logger.Warn("Failed to publish migration event", zap.Error(err))
	}
}
