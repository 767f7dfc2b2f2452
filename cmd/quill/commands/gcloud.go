package commands

import (
	"fmt"

	"github.com/dyluth/quill/internal/config"
	"github.com/dyluth/quill/internal/gcloud"
	"github.com/dyluth/quill/internal/git"
	"github.com/dyluth/quill/internal/printer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newGcloudAdapter is replaced in tests.
var newGcloudAdapter = func(logger *zap.Logger) *gcloud.Adapter {
	return gcloud.New(gcloud.WithLogger(logger))
}

var gcloudCmd = &cobra.Command{
	Use:   "gcloud",
	Short: "Release the App Engine application with gcloud",
	Long: `Wraps the gcloud commands used to release the application serving the
question store: datastore indexes, version queries, deployment and traffic
switching. The project and services are read from the gcloud section of quill.yml.`,
}

var gcloudCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check gcloud is installed and every datastore index is serving",
	Args:  cobra.NoArgs,
	RunE: withGcloud(func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error {
		ctx := cmd.Context()
		if err := a.RequireGcloudToBeAvailable(ctx); err != nil {
			return printer.Error("gcloud not available", err.Error(), []string{"Install the Google Cloud SDK:\n  https://cloud.google.com/sdk/docs/install"})
		}
		serving, err := a.CheckAllIndexesAreServing(ctx, cfg.App)
		if err != nil {
			return err
		}
		if !serving {
			return printer.Error(
				"indexes not serving",
				fmt.Sprintf("Some datastore indexes of %s are still building.", cfg.App),
				[]string{"Wait for the indexes to finish building, then check again"},
			)
		}
		printer.Success("gcloud available and all indexes of %s are serving\n", cfg.App)
		return nil
	}),
}

var gcloudIndexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the datastore indexes declared in gcloud.indexes_file",
	Args:  cobra.NoArgs,
	RunE: withGcloud(func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error {
		if err := a.UpdateIndexes(cmd.Context(), cfg.IndexesFile, cfg.App); err != nil {
			return printer.ErrorWithContext("index update failed", err.Error(), map[string]string{"Indexes file": cfg.IndexesFile}, nil)
		}
		printer.Success("Updated indexes of %s from %s\n", cfg.App, cfg.IndexesFile)
		return nil
	}),
}

var gcloudServedVersionCmd = &cobra.Command{
	Use:   "served-version",
	Short: "Print the version currently serving the default service",
	Args:  cobra.NoArgs,
	RunE: withGcloud(func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error {
		version, err := a.GetCurrentlyServedVersion(cmd.Context(), cfg.App)
		if err != nil {
			return err
		}
		printer.Println(version)
		return nil
	}),
}

var gcloudLatestVersionCmd = &cobra.Command{
	Use:   "latest-version [SERVICE]",
	Short: "Print the most recently deployed version of a service",
	Args:  cobra.MaximumNArgs(1),
	RunE: withGcloud(func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error {
		service := gcloud.DefaultService
		if len(args) == 1 {
			service = args[0]
		}
		version, err := a.GetLatestDeployedVersion(cmd.Context(), cfg.App, service)
		if err != nil {
			return err
		}
		printer.Println(version)
		return nil
	}),
}

var gcloudSwitchCmd = &cobra.Command{
	Use:   "switch VERSION",
	Short: "Route all traffic to VERSION, and auxiliary services to their latest versions",
	Args:  cobra.ExactArgs(1),
	RunE: withGcloud(func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error {
		if err := a.SwitchVersion(cmd.Context(), cfg.App, args[0], cfg.AuxiliaryServices...); err != nil {
			return printer.ErrorWithContext("version switch failed", err.Error(), map[string]string{"App": cfg.App, "Version": args[0]}, nil)
		}
		printer.Success("Switched %s to version %s\n", cfg.App, args[0])
		return nil
	}),
}

var gcloudDeployCmd = &cobra.Command{
	Use:   "deploy VERSION",
	Short: "Deploy gcloud.app_yaml as VERSION without promoting it",
	Args:  cobra.ExactArgs(1),
	RunE: withGcloud(func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error {
		if deployRequireClean {
			if err := git.NewChecker(deployRepoDir).ValidateReleaseCheckout(cmd.Context()); err != nil {
				return printer.Error(
					"refusing to deploy",
					err.Error(),
					[]string{"Commit or stash your changes, or deploy without --require-clean"},
				)
			}
		}
		if err := a.DeployApplication(cmd.Context(), cfg.AppYAML, cfg.App, args[0]); err != nil {
			return printer.ErrorWithContext("deploy failed", err.Error(), map[string]string{"App": cfg.App, "Version": args[0]}, nil)
		}
		printer.Success("Deployed version %s of %s (not promoted)\n", args[0], cfg.App)
		printer.Info("Route traffic to it with:\n  quill gcloud switch %s\n", args[0])
		return nil
	}),
}

var (
	deployRequireClean bool
	deployRepoDir      string
)

func init() {
	gcloudDeployCmd.Flags().BoolVar(&deployRequireClean, "require-clean", false, "Refuse to deploy from a Git checkout with uncommitted changes")
	gcloudDeployCmd.Flags().StringVar(&deployRepoDir, "repo", ".", "Git checkout checked by --require-clean")

	gcloudCmd.AddCommand(gcloudCheckCmd, gcloudIndexesCmd, gcloudServedVersionCmd,
		gcloudLatestVersionCmd, gcloudSwitchCmd, gcloudDeployCmd)
	rootCmd.AddCommand(gcloudCmd)
}

type gcloudRunE func(cmd *cobra.Command, args []string, a *gcloud.Adapter, cfg *config.GcloudConfig) error

// withGcloud loads the gcloud section of quill.yml and builds the adapter.
func withGcloud(run gcloudRunE) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Gcloud == nil {
			return printer.Error(
				"gcloud not configured",
				fmt.Sprintf("%s has no gcloud section.", configPath),
				[]string{"Add one:\n  gcloud:\n    app: <app-engine-project>"},
			)
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return run(cmd, args, newGcloudAdapter(logger), cfg.Gcloud)
	}
}
