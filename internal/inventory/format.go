package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dyluth/quill/pkg/question"
	"golang.org/x/net/html"
)

// FormatTable writes questions as a table to w and returns the number of
// rows written.
func FormatTable(w io.Writer, questions []*question.Question, namespace string) int {
	if len(questions) == 0 {
		fmt.Fprintf(w, "No questions found in namespace '%s'\n", namespace)
		return 0
	}

	fmt.Fprintf(w, "Questions in namespace '%s':\n\n", namespace)

	fmt.Fprintf(w, "%-14s %-6s %-4s %-4s %-20s %-14s %s\n",
		"ID", "SCHEMA", "VER", "LANG", "INTERACTION", "UPDATED", "CONTENT")
	fmt.Fprintf(w, "%-14s %-6s %-4s %-4s %-20s %-14s %s\n",
		"--------------", "------", "----", "----", "--------------------", "--------------", "----------------------------------------")

	for _, q := range questions {
		fmt.Fprintf(w, "%-14s %-6s %-4d %-4s %-20s %-14s %s\n",
			formatID(q.ID),
			fmt.Sprintf("v%d", q.SchemaVersion),
			q.Version,
			q.LanguageCode,
			formatInteraction(interactionID(q)),
			formatTimestamp(q.LastUpdatedMs),
			formatContent(q),
		)
	}

	noun := "question"
	if len(questions) != 1 {
		noun = "questions"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(questions), noun)

	return len(questions)
}

// FormatJSONL writes questions as line-delimited JSON, one ToDict object
// per line.
func FormatJSONL(w io.Writer, questions []*question.Question) error {
	for _, q := range questions {
		data, err := json.Marshal(q.ToDict())
		if err != nil {
			return fmt.Errorf("failed to marshal question to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes v as pretty-printed JSON followed by a newline.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)

	return nil
}

func formatID(id string) string {
	if len(id) > 14 {
		return id[:11] + "..."
	}
	return id
}

func formatInteraction(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 20 {
		return id[:17] + "..."
	}
	return id
}

// formatTimestamp renders a unix-ms timestamp relative to now ("3 minutes ago").
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(timestampMs))
}

// formatContent returns the first 40 characters of the question content's
// text, with markup removed. Empty content returns "-".
func formatContent(q *question.Question) string {
	summary, err := question.NewSummary(q)
	if err != nil || summary.QuestionContent == "" {
		return "-"
	}

	text := strings.Join(strings.Fields(htmlText(summary.QuestionContent)), " ")
	if text == "" {
		return "-"
	}

	if r := []rune(text); len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return text
}

// htmlText returns the text nodes of an html fragment.
func htmlText(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
