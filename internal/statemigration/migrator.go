// Package statemigration advances serialized question states through the
// state schema versions, one version per step.
//
// Steps live in an explicit table keyed by the version they migrate from.
// Each step is a pure function of the state blob and the capabilities it is
// given (frozen interaction specs, the math expression evaluator and the
// HTML transform); none of them read the current schema version. Callers
// loop with MigrateToVersion or UpdateStateFromModel, which apply each step
// to a copy and commit the state together with the version counter.
package statemigration

import (
	"fmt"
	"time"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/custargs"
	"github.com/dyluth/quill/internal/htmlconv"
	"github.com/dyluth/quill/internal/mathexpr"
	"github.com/dyluth/quill/internal/registry"
	"go.uber.org/zap"
)

// SpecProvider supplies customization-arg specs frozen at a schema version.
type SpecProvider interface {
	SpecsForSchemaVersion(interactionID string, schemaVersion int) ([]custargs.Spec, error)
}

// ExpressionEvaluator converts and classifies math rule inputs.
type ExpressionEvaluator interface {
	LatexToText(latex string) string
	CleanMathExpression(expr string) string
	IsValidAlgebraicExpression(expr string) bool
	IsValidNumericExpression(expr string) bool
	IsValidMathEquation(expr string) bool
	Variables(expr string) ([]string, error)
}

// VersionedState is a state blob tagged with its schema version.
type VersionedState struct {
	SchemaVersion int            `json:"state_schema_version"`
	State         map[string]any `json:"state"`
}

// Migrator applies registered steps. It holds no mutable state and is safe
// for concurrent use on distinct blobs.
type Migrator struct {
	logger    *zap.Logger
	specs     SpecProvider
	expr      ExpressionEvaluator
	transform htmlconv.Transform
	now       func() time.Time
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger used for step events and normalizer warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSpecProvider replaces the embedded interaction registry.
func WithSpecProvider(p SpecProvider) Option {
	return func(m *Migrator) { m.specs = p }
}

// WithExpressionEvaluator replaces the built-in math expression evaluator.
func WithExpressionEvaluator(e ExpressionEvaluator) Option {
	return func(m *Migrator) { m.expr = e }
}

// WithHTMLTransform replaces the HTML transform used by the v33 -> v34 step.
func WithHTMLTransform(t htmlconv.Transform) Option {
	return func(m *Migrator) { m.transform = t }
}

// New builds a Migrator. Without options it uses the embedded interaction
// registry, the mathexpr evaluator and the math RTE upgrade transform.
func New(opts ...Option) (*Migrator, error) {
	m := &Migrator{
		logger:    zap.NewNop(),
		expr:      mathexpr.Evaluator{},
		transform: htmlconv.AddMathContentToMathRTEComponents,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.specs == nil {
		reg, err := registry.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load interaction registry: %w", err)
		}
		m.specs = reg
	}

	return m, nil
}

// AdvanceOneVersion returns a copy of state migrated from fromVersion to
// fromVersion+1. state itself is never modified.
func (m *Migrator) AdvanceOneVersion(state map[string]any, fromVersion int) (map[string]any, error) {
	step, ok := lookupStep(fromVersion)
	if !ok {
		err := &StepNotFoundError{FromVersion: fromVersion}
		observeStep(fromVersion, 0, err)
		return nil, err
	}

	working := blob.DeepCopyMap(state)
	if working == nil {
		err := blob.Malformed("", "state is null")
		observeStep(fromVersion, 0, err)
		return nil, err
	}

	m.logStepEvent(step, "started")
	start := m.now()
	err := step.apply(m, working)
	observeStep(fromVersion, m.now().Sub(start), err)
	if err != nil {
		m.logger.Warn("State migration step failed",
			zap.String("event_type", "state_migration_step_failed"),
			zap.String("step", step.Name),
			zap.Int("from_version", step.FromVersion),
			zap.Error(err),
		)
		return nil, fmt.Errorf("migrate state v%d -> v%d: %w", fromVersion, fromVersion+1, err)
	}
	m.logStepEvent(step, "completed")

	return working, nil
}

// UpdateStateFromModel advances vs by exactly one version, from
// fromVersion. vs.State and vs.SchemaVersion are replaced together only when
// the step succeeds; on error vs is left untouched.
func (m *Migrator) UpdateStateFromModel(vs *VersionedState, fromVersion int) error {
	if vs.SchemaVersion != fromVersion {
		return &VersionMismatchError{Recorded: vs.SchemaVersion, Requested: fromVersion}
	}

	next, err := m.AdvanceOneVersion(vs.State, fromVersion)
	if err != nil {
		return err
	}

	vs.State = next
	vs.SchemaVersion = fromVersion + 1
	return nil
}

// MigrateToVersion advances vs one step at a time until it reaches target.
// It returns the number of steps applied. A state already at or beyond
// target is left alone. If a step fails, vs holds the last successfully
// migrated version.
func (m *Migrator) MigrateToVersion(vs *VersionedState, target int) (int, error) {
	applied := 0
	for vs.SchemaVersion < target {
		if err := m.UpdateStateFromModel(vs, vs.SchemaVersion); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (m *Migrator) logStepEvent(step Step, event string) {
	m.logger.Debug("Executing state migration step",
		zap.String("event_type", "state_migration_step"),
		zap.String("step", step.Name),
		zap.Int("from_version", step.FromVersion),
		zap.String("migration_event", event),
	)
}

// specsAt fetches specs at a frozen schema version, reporting failures
// against the interaction id path.
func (m *Migrator) specsAt(interactionID string, version int) ([]custargs.Spec, error) {
	specs, err := m.specs.SpecsForSchemaVersion(interactionID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get v%d specs for %s: %w", version, interactionID, err)
	}
	return specs, nil
}
