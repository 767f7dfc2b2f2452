// Package git checks the checkout a release is deployed from.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Checker inspects the Git checkout rooted at (or containing) a directory.
type Checker struct {
	dir string
}

// NewChecker creates a checker for the checkout containing dir.
func NewChecker(dir string) *Checker {
	return &Checker{dir: dir}
}

func (c *Checker) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	return cmd.Output()
}

// IsGitRepository reports whether dir is within a Git repository.
func (c *Checker) IsGitRepository(ctx context.Context) (bool, error) {
	if _, err := c.git(ctx, "rev-parse", "--git-dir"); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return false, fmt.Errorf("git not found in PATH\nInstall Git: https://git-scm.com/downloads")
		}
		return false, nil
	}
	return true, nil
}

// IsWorkspaceClean returns true if the working directory has no uncommitted
// changes. This includes staged, unstaged, and untracked files.
func (c *Checker) IsWorkspaceClean(ctx context.Context) (bool, error) {
	out, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to check Git status: %w", err)
	}
	return len(strings.TrimSpace(string(out))) == 0, nil
}

// GetDirtyFiles returns a formatted list of uncommitted changes for error
// messages, or "" if the workspace is clean.
func (c *Checker) GetDirtyFiles(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("failed to check Git status: %w", err)
	}
	return formatPorcelain(string(out)), nil
}

func formatPorcelain(porcelain string) string {
	var modified, untracked []string
	for _, line := range strings.Split(strings.TrimRight(porcelain, "\n"), "\n") {
		if len(line) < 3 {
			continue
		}
		status, file := line[:2], strings.TrimSpace(line[2:])
		if status == "??" {
			untracked = append(untracked, file)
		} else {
			modified = append(modified, file)
		}
	}

	var parts []string
	if len(modified) > 0 {
		parts = append(parts, "Uncommitted changes:")
		for _, file := range modified {
			parts = append(parts, " M "+file)
		}
	}
	if len(untracked) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "Untracked files:")
		for _, file := range untracked {
			parts = append(parts, "?? "+file)
		}
	}
	return strings.Join(parts, "\n")
}

// ValidateReleaseCheckout returns a user-facing error unless dir is a clean
// Git checkout.
func (c *Checker) ValidateReleaseCheckout(ctx context.Context) error {
	isRepo, err := c.IsGitRepository(ctx)
	if err != nil {
		return err
	}
	if !isRepo {
		return fmt.Errorf("%s is not a Git repository", c.dir)
	}

	dirty, err := c.GetDirtyFiles(ctx)
	if err != nil {
		return err
	}
	if dirty != "" {
		return fmt.Errorf("workspace has uncommitted changes\n\n%s", dirty)
	}
	return nil
}
