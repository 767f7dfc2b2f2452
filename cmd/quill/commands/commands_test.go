package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/quill/internal/printer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

// executeCommand runs the root command with args, starting from default
// flag values.
func executeCommand(t *testing.T, args ...string) cmdResult {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		printer.SetOutput(os.Stdout, os.Stderr)
	})

	err := rootCmd.Execute()
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type testProject struct {
	dir        string
	configPath string
	mr         *miniredis.Miniredis
}

// setupProject initializes a project in a temp dir with a quill.yml pointing
// at a miniredis store and a file-backed history ledger.
func setupProject(t *testing.T, extraConfig string) *testProject {
	t.Helper()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	configPath := filepath.Join(dir, "quill-test.yml")
	cfg := fmt.Sprintf(`version: "1.0"
namespace: cli-test
redis:
  addr: %s
history:
  dsn: %s
logging:
  level: error
%s`, mr.Addr(), filepath.Join(dir, "history.db"), extraConfig)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0644))

	res := executeCommand(t, "init", "--dir", dir)
	require.NoError(t, res.err)

	return &testProject{dir: dir, configPath: configPath, mr: mr}
}

func (p *testProject) examplePath() string {
	return filepath.Join(p.dir, "questions", "example-question.json")
}

func (p *testProject) run(t *testing.T, args ...string) cmdResult {
	t.Helper()
	return executeCommand(t, append(args, "--config", p.configPath)...)
}
