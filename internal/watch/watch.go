package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/quill/pkg/question"
)

// OutputFormat selects how migration events are rendered.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable, one line per event.
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is line-delimited JSON.
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s (valid: default, json)", s)
	}
}

type formatter interface {
	FormatMigration(e *question.MigrationEvent) error
}

func newFormatter(format OutputFormat, w io.Writer) formatter {
	if format == OutputFormatJSON {
		return &jsonFormatter{writer: w}
	}
	return &defaultFormatter{writer: w}
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatMigration(e *question.MigrationEvent) error {
	ts := time.UnixMilli(e.TimestampMs).Format("15:04:05")

	var err error
	switch e.Status {
	case question.MigrationStatusApplied:
		_, err = fmt.Fprintf(f.writer, "[%s] ✅ Migrated: question=%s v%d → v%d\n", ts, e.QuestionID, e.FromVersion, e.ToVersion)
	case question.MigrationStatusFailed:
		_, err = fmt.Fprintf(f.writer, "[%s] ❌ Migration failed: question=%s at v%d: %s\n", ts, e.QuestionID, e.ToVersion, e.Error)
	case question.MigrationStatusSkipped:
		_, err = fmt.Fprintf(f.writer, "[%s] ⏭️  Skipped: question=%s (%s)\n", ts, e.QuestionID, e.Error)
	default:
		_, err = fmt.Fprintf(f.writer, "[%s] Migration event: question=%s status=%s\n", ts, e.QuestionID, e.Status)
	}
	return err
}

type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) FormatMigration(e *question.MigrationEvent) error {
	data, err := json.Marshal(struct {
		Event string `json:"event"`
		*question.MigrationEvent
	}{Event: "question_migration", MigrationEvent: e})
	if err != nil {
		return fmt.Errorf("failed to marshal migration event: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}

// EventSource delivers migration events.
type EventSource interface {
	SubscribeMigrationEvents(ctx context.Context) (*question.Subscription, error)
}

// StreamMigrationEvents writes every migration event to w until ctx is
// cancelled. Malformed events are reported to w and skipped.
func StreamMigrationEvents(ctx context.Context, source EventSource, format OutputFormat, w io.Writer) error {
	sub, err := source.SubscribeMigrationEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	f := newFormatter(format, w)
	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.FormatMigration(e); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				// Closed together with events
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

// QuestionGetter loads stored questions.
type QuestionGetter interface {
	GetQuestion(ctx context.Context, questionID string) (*question.Question, error)
}

// PollForSchemaVersion polls until the stored question reaches at least
// version. Polls every 200ms for the specified timeout duration.
func PollForSchemaVersion(ctx context.Context, client QuestionGetter, questionID string, version int, timeout time.Duration) (*question.Question, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for question %s to reach v%d after %v", questionID, version, timeout)

		case <-ticker.C:
			q, err := client.GetQuestion(ctx, questionID)
			if err != nil {
				if question.IsNotFound(err) {
					// Not stored yet, continue polling
					continue
				}
				return nil, fmt.Errorf("failed to query question: %w", err)
			}
			if q.SchemaVersion >= version {
				return q, nil
			}
		}
	}
}
