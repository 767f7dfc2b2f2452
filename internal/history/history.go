// Package history keeps a durable ledger of stored-question migration
// attempts in a SQL database (SQLite by default).
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/quill/pkg/question"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Record is one migration attempt of one question.
type Record struct {
	ID          uint                     `gorm:"primaryKey" json:"id"`
	QuestionID  string                   `gorm:"size:64;not null;index:idx_question_recorded" json:"question_id"`
	FromVersion int                      `gorm:"not null" json:"from_version"`
	ToVersion   int                      `gorm:"not null" json:"to_version"`
	Status      question.MigrationStatus `gorm:"size:16;not null" json:"status"`
	Error       string                   `gorm:"type:text" json:"error,omitempty"`
	RecordedAt  int64                    `gorm:"not null;index:idx_question_recorded" json:"recorded_at_ms"` // Unix ms
}

// Time returns when the attempt was recorded.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.RecordedAt)
}

// TableName keeps the table name stable if the type is renamed.
func (Record) TableName() string {
	return "quill_migration_history"
}

// Recorder writes and queries migration records.
type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at dsn and prepares
// the history table. Use ":memory:" for a throwaway ledger.
func Open(dsn string) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps a
	// ":memory:" database alive and shared between goroutines.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get history database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewRecorder(db)
}

// NewRecorder wraps an existing gorm connection, migrating the history table.
func NewRecorder(db *gorm.DB) (*Recorder, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history table: %w", err)
	}
	return &Recorder{db: db, now: time.Now}, nil
}

// Record stores the outcome carried by e. Events without a timestamp are
// stamped with the current time.
func (r *Recorder) Record(ctx context.Context, e *question.MigrationEvent) (*Record, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migration event: %w", err)
	}

	recordedAt := r.now()
	if e.TimestampMs > 0 {
		recordedAt = time.UnixMilli(e.TimestampMs)
	}

	rec := &Record{
		QuestionID:  e.QuestionID,
		FromVersion: e.FromVersion,
		ToVersion:   e.ToVersion,
		Status:      e.Status,
		Error:       e.Error,
		RecordedAt:  recordedAt.UnixMilli(),
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to write migration record: %w", err)
	}
	return rec, nil
}

// ForQuestion returns the records of questionID in chronological order.
// A zero since or until leaves that end of the range open; both ends are
// inclusive.
func (r *Recorder) ForQuestion(ctx context.Context, questionID string, since, until time.Time) ([]Record, error) {
	query := r.db.WithContext(ctx).Where("question_id = ?", questionID)
	if !since.IsZero() {
		query = query.Where("recorded_at >= ?", since.UnixMilli())
	}
	if !until.IsZero() {
		query = query.Where("recorded_at <= ?", until.UnixMilli())
	}

	var records []Record
	if err := query.Order("recorded_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	return records, nil
}

// CountByStatus returns how many attempts ended in each status.
func (r *Recorder) CountByStatus(ctx context.Context) (map[question.MigrationStatus]int64, error) {
	var rows []struct {
		Status question.MigrationStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&Record{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count migration records: %w", err)
	}

	counts := make(map[question.MigrationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Close closes the underlying database connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get history database handle: %w", err)
	}
	return sqlDB.Close()
}
