// Package gcloud wraps the gcloud CLI commands used to release quill's
// App Engine application: datastore index management, version queries,
// traffic switching and deployment.
package gcloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultService is the App Engine service receiving user traffic.
const DefaultService = "default"

// ErrMissingIndexesFile is returned by UpdateIndexes when the index file does
// not exist.
var ErrMissingIndexesFile = errors.New("Missing indexes file.")

// Runner runs a command and returns its standard output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output implements Runner. Stderr is included in the error on failure.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// IndexDescription is one datastore composite index.
type IndexDescription struct {
	IndexID string `json:"indexId"`
	Kind    string `json:"kind,omitempty"`
	State   string `json:"state"`
}

// Adapter issues gcloud commands through a Runner.
type Adapter struct {
	runner Runner
	logger *zap.Logger
	isFile func(path string) bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRunner replaces the os/exec runner.
func WithRunner(r Runner) Option {
	return func(a *Adapter) { a.runner = r }
}

// WithLogger sets the adapter logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		runner: ExecRunner{},
		logger: zap.NewNop(),
		isFile: isRegularFile,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (a *Adapter) gcloud(ctx context.Context, args ...string) ([]byte, error) {
	a.logger.Debug("Running gcloud", zap.Strings("args", args))
	return a.runner.Output(ctx, "gcloud", args...)
}

// RequireGcloudToBeAvailable checks that gcloud can be run.
func (a *Adapter) RequireGcloudToBeAvailable(ctx context.Context) error {
	if _, err := a.gcloud(ctx, "--version"); err != nil {
		return fmt.Errorf("gcloud required, but could not be found. Install the Google Cloud SDK and make sure gcloud is on your PATH: %w", err)
	}
	return nil
}

// UpdateIndexes creates the datastore indexes declared in indexYAMLPath.
func (a *Adapter) UpdateIndexes(ctx context.Context, indexYAMLPath, app string) error {
	if !a.isFile(indexYAMLPath) {
		return ErrMissingIndexesFile
	}
	if _, err := a.gcloud(ctx, "datastore", "indexes", "create", indexYAMLPath, "--project="+app, "--quiet"); err != nil {
		return fmt.Errorf("failed to update indexes: %w", err)
	}
	return nil
}

// GetAllIndexDescriptions lists every datastore index of app.
func (a *Adapter) GetAllIndexDescriptions(ctx context.Context, app string) ([]IndexDescription, error) {
	out, err := a.gcloud(ctx, "datastore", "indexes", "list", "--project="+app, "--format=json")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}

	var indexes []IndexDescription
	if err := json.Unmarshal(out, &indexes); err != nil {
		return nil, fmt.Errorf("failed to parse index descriptions: %w", err)
	}
	return indexes, nil
}

// CheckAllIndexesAreServing reports whether every index of app is READY.
func (a *Adapter) CheckAllIndexesAreServing(ctx context.Context, app string) (bool, error) {
	indexes, err := a.GetAllIndexDescriptions(ctx, app)
	if err != nil {
		return false, err
	}
	for _, index := range indexes {
		if index.State != "READY" {
			return false, nil
		}
	}
	return true, nil
}

// GetCurrentlyServedVersion returns the version of the default service that
// currently receives traffic.
func (a *Adapter) GetCurrentlyServedVersion(ctx context.Context, app string) (string, error) {
	out, err := a.gcloud(ctx, "app", "versions", "list", "--hide-no-traffic", "--service="+DefaultService, "--project="+app)
	if err != nil {
		return "", fmt.Errorf("failed to list served versions: %w", err)
	}

	// Output is a table:
	//   SERVICE  VERSION  TRAFFIC_SPLIT  LAST_DEPLOYED  SERVING_STATUS
	//   default  2-1-1    1.00           ...            SERVING
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == DefaultService {
			return fields[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read served versions: %w", err)
	}
	return "", fmt.Errorf("no served version found for service %s", DefaultService)
}

type deployedVersion struct {
	ID      string `json:"id"`
	Version struct {
		ID         string `json:"id"`
		CreateTime string `json:"createTime"`
	} `json:"version"`
}

// GetLatestDeployedVersion returns the most recently created version of
// service.
func (a *Adapter) GetLatestDeployedVersion(ctx context.Context, app, service string) (string, error) {
	out, err := a.gcloud(ctx, "app", "versions", "list", "--service="+service, "--format=json", "--project="+app)
	if err != nil {
		return "", fmt.Errorf("failed to list versions of %s: %w", service, err)
	}

	var versions []deployedVersion
	if err := json.Unmarshal(out, &versions); err != nil {
		return "", fmt.Errorf("failed to parse versions of %s: %w", service, err)
	}

	var (
		latestID   string
		latestTime time.Time
	)
	for _, v := range versions {
		created, err := time.Parse(time.RFC3339, v.Version.CreateTime)
		if err != nil {
			return "", fmt.Errorf("version %s has invalid createTime %q: %w", v.ID, v.Version.CreateTime, err)
		}
		if latestID == "" || created.After(latestTime) {
			latestID, latestTime = v.ID, created
		}
	}
	if latestID == "" {
		return "", fmt.Errorf("no deployed versions found for service %s", service)
	}
	return latestID, nil
}

// SwitchVersion routes all default-service traffic to version, then routes
// each auxiliary service to its latest deployed version.
func (a *Adapter) SwitchVersion(ctx context.Context, app, version string, auxiliaryServices ...string) error {
	if err := a.setTraffic(ctx, app, DefaultService, version); err != nil {
		return err
	}

	for _, service := range auxiliaryServices {
		latest, err := a.GetLatestDeployedVersion(ctx, app, service)
		if err != nil {
			return err
		}
		if err := a.setTraffic(ctx, app, service, latest); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) setTraffic(ctx context.Context, app, service, version string) error {
	a.logger.Info("Switching traffic", zap.String("service", service), zap.String("version", version))
	_, err := a.gcloud(ctx, "app", "services", "set-traffic", service, "--splits", version+"=1", "--project="+app, "--quiet")
	if err != nil {
		return fmt.Errorf("failed to switch %s to version %s: %w", service, version, err)
	}
	return nil
}

// DeployApplication deploys appYAMLPath as version without promoting it.
func (a *Adapter) DeployApplication(ctx context.Context, appYAMLPath, app, version string) error {
	_, err := a.gcloud(ctx, "app", "deploy", appYAMLPath,
		"--no-promote", "--no-stop-previous-version",
		"--version="+version, "--project="+app, "--quiet")
	if err != nil {
		return fmt.Errorf("failed to deploy %s: %w", appYAMLPath, err)
	}
	return nil
}
