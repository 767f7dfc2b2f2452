package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dyluth/quill/internal/config"
	"github.com/dyluth/quill/internal/logging"
	"github.com/dyluth/quill/internal/printer"
	"github.com/dyluth/quill/pkg/question"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill - question state schema migration toolkit",
	Long: `Quill upgrades serialized question states through the state schema
versions, one version at a time.

It migrates question documents on disk, validates them, and upgrades the
questions held in a Redis question store, recording every attempt in a
migration history ledger.`,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		printer.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	printer.Fatal(err)
	return err
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to quill.yml")
}

// loadConfig loads the --config file. A missing default quill.yml falls
// back to the built-in defaults; a missing explicit --config is an error.
func loadConfig(cmd *cobra.Command) (*config.QuillConfig, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, printer.ErrorWithContext(
		"invalid configuration",
		err.Error(),
		map[string]string{"Config": configPath},
		[]string{"Create a default configuration:\n  quill init"},
	)
}

func newLogger(cfg *config.QuillConfig) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// connectStore opens the question store and checks it is reachable.
func connectStore(ctx context.Context, cfg *config.QuillConfig) (*question.Client, error) {
	client, err := question.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create question store client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to the question store at %s", cfg.Redis.Addr),
			map[string]string{"Error": err.Error()},
			[]string{
				fmt.Sprintf("Check redis.addr in %s", configPath),
				"Start a local Redis:\n  docker run -p 6379:6379 redis:7-alpine",
			},
		)
	}
	return client, nil
}
