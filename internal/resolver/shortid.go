// Package resolver expands question id prefixes typed on the command line.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MinShortIDLength is the shortest prefix accepted for a question id that
// does not match exactly.
const MinShortIDLength = 6

// Store is the subset of the question store used for resolution.
type Store interface {
	QuestionExists(ctx context.Context, questionID string) (bool, error)
	ListQuestionIDs(ctx context.Context) ([]string, error)
}

// ResolveQuestionID resolves an id or id prefix to a stored question id.
//
// An exact match always wins. Otherwise the input must be at least
// MinShortIDLength characters and match exactly one stored id.
func ResolveQuestionID(ctx context.Context, store Store, shortID string) (string, error) {
	exists, err := store.QuestionExists(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to verify question existence: %w", err)
	}
	if exists {
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	ids, err := store.ListQuestionIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for question: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, shortID) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no questions matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no questions found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple questions matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d questions", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching ids (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d questions:\n", err.ShortID, len(err.Matches))

	displayCount := min(len(err.Matches), 10)
	for _, id := range err.Matches[:displayCount] {
		fmt.Fprintf(&b, "  %s\n", id)
	}

	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the question.")
	return b.String()
}

// IsNotFoundError reports whether no stored question matched.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError reports whether the prefix matched several questions.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
