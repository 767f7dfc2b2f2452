package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dyluth/quill/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// QuestionsDir holds question documents created by init.
const QuestionsDir = "questions"

// ExampleQuestionPath is the sample question written by init, relative to the
// project directory.
var ExampleQuestionPath = filepath.Join(QuestionsDir, "example-question.json")

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the quill project structure in dir.
// If force is true, it will remove existing quill.yml and questions/ directory
func Initialize(dir string, force bool, w io.Writer) error {
	if force {
		if err := handleForce(dir, w); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := createDirectories(dir); err != nil {
		return err
	}

	if err := writeFiles(dir, files); err != nil {
		return err
	}

	return validateCreatedFiles(dir)
}

// handleForce removes existing files if --force was specified
func handleForce(dir string, w io.Writer) error {
	configPath := filepath.Join(dir, config.DefaultPath)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(w, "⚠️  Removing existing %s...\n", config.DefaultPath)
		if err := os.Remove(configPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", config.DefaultPath, err)
		}
	}

	questionsPath := filepath.Join(dir, QuestionsDir)
	if info, err := os.Stat(questionsPath); err == nil && info.IsDir() {
		fmt.Fprintf(w, "⚠️  Removing existing %s/ directory...\n", QuestionsDir)
		if err := os.RemoveAll(questionsPath); err != nil {
			return fmt.Errorf("failed to remove %s/ directory: %w", QuestionsDir, err)
		}
	}

	return nil
}

// getTemplateFiles reads all template files
func getTemplateFiles() ([]FileInfo, error) {
	quillYml, err := templatesFS.ReadFile("templates/quill.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", config.DefaultPath, err)
	}

	example, err := templatesFS.ReadFile("templates/example-question.json.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read example question template: %w", err)
	}

	return []FileInfo{
		{Path: config.DefaultPath, Content: quillYml, Permissions: 0644},
		{Path: ExampleQuestionPath, Content: example, Permissions: 0644},
	}, nil
}

func createDirectories(dir string) error {
	path := filepath.Join(dir, QuestionsDir)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func writeFiles(dir string, files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Path), file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles checks that quill.yml loads and the example question
// is valid JSON.
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}

	content, err := os.ReadFile(filepath.Join(dir, ExampleQuestionPath))
	if err != nil {
		return fmt.Errorf("failed to read created example question: %w", err)
	}
	if !json.Valid(content) {
		return fmt.Errorf("created %s is not valid JSON", ExampleQuestionPath)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(w io.Writer) {
	fmt.Fprintln(w, "\n✅ Successfully initialized quill project!")
	fmt.Fprintln(w, "\nCreated:")
	fmt.Fprintf(w, "  ✓ %s\n", config.DefaultPath)
	fmt.Fprintf(w, "  ✓ %s\n", ExampleQuestionPath)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintf(w, "  1. Run 'quill migrate %s --diff' to preview the migration\n", ExampleQuestionPath)
	fmt.Fprintf(w, "  2. Point redis.addr in %s at your question store\n", config.DefaultPath)
	fmt.Fprintln(w, "  3. Run 'quill store migrate --all' to upgrade stored questions")
}
