// Package registry serves interaction customization-arg specs frozen at
// particular state schema versions.
//
// Snapshots are embedded YAML files under specs/. A migration step that
// needs the specs "as of" version N asks for N explicitly, so later changes
// to the live interaction definitions never alter what an old step does.
package registry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/custargs"
	"gopkg.in/yaml.v3"
)

//go:embed specs/*.yml
var snapshotFS embed.FS

var (
	// ErrUnknownSchemaVersion is returned when no snapshot exists for a version.
	ErrUnknownSchemaVersion = errors.New("no interaction specs for schema version")

	// ErrUnknownInteraction is returned when a snapshot does not define an interaction.
	ErrUnknownInteraction = errors.New("unknown interaction")
)

// Interaction is one interaction's entry in a snapshot.
type Interaction struct {
	CanHaveSolution       bool            `yaml:"can_have_solution"`
	CustomizationArgSpecs []custargs.Spec `yaml:"customization_arg_specs"`
}

type snapshot struct {
	SchemaVersion int                    `yaml:"schema_version"`
	Interactions  map[string]Interaction `yaml:"interactions"`
}

// Registry holds every loaded snapshot. It is immutable after Load and safe
// for concurrent use.
type Registry struct {
	snapshots map[int]snapshot
	versions  []int
}

// Load parses the embedded snapshots.
func Load() (*Registry, error) {
	return loadFrom(snapshotFS, "specs")
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry built from the embedded snapshots, loading it
// on first use.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Load()
	})
	return defaultRegistry, defaultErr
}

func loadFrom(fsys fs.FS, dir string) (*Registry, error) {
	files, err := fs.Glob(fsys, dir+"/*.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	r := &Registry{snapshots: make(map[int]snapshot, len(files))}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
		}

		var snap snapshot
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot %s: %w", name, err)
		}
		if snap.SchemaVersion < 1 {
			return nil, fmt.Errorf("snapshot %s: schema_version must be >= 1", name)
		}
		if _, dup := r.snapshots[snap.SchemaVersion]; dup {
			return nil, fmt.Errorf("snapshot %s: duplicate schema_version %d", name, snap.SchemaVersion)
		}
		for id, interaction := range snap.Interactions {
			for i, spec := range interaction.CustomizationArgSpecs {
				if spec.Name == "" {
					return nil, fmt.Errorf("snapshot %s: %s spec %d has no name", name, id, i)
				}
				if custargs.SchemaType(spec.Schema) == "" {
					return nil, fmt.Errorf("snapshot %s: %s.%s has no schema type", name, id, spec.Name)
				}
			}
		}

		r.snapshots[snap.SchemaVersion] = snap
		r.versions = append(r.versions, snap.SchemaVersion)
	}
	sort.Ints(r.versions)

	return r, nil
}

// Versions returns the schema versions that have snapshots, ascending.
func (r *Registry) Versions() []int {
	out := make([]int, len(r.versions))
	copy(out, r.versions)
	return out
}

// InteractionIDs returns the interaction ids defined at version, sorted.
func (r *Registry) InteractionIDs(version int) ([]string, error) {
	snap, ok := r.snapshots[version]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownSchemaVersion, version)
	}
	ids := make([]string, 0, len(snap.Interactions))
	for id := range snap.Interactions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SpecsForSchemaVersion returns the ordered customization-arg specs of
// interactionID exactly as frozen at version. The returned specs are copies;
// callers may mutate them freely.
func (r *Registry) SpecsForSchemaVersion(interactionID string, version int) ([]custargs.Spec, error) {
	snap, ok := r.snapshots[version]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownSchemaVersion, version)
	}
	interaction, ok := snap.Interactions[interactionID]
	if !ok {
		return nil, fmt.Errorf("%w %q at schema version %d", ErrUnknownInteraction, interactionID, version)
	}

	specs := make([]custargs.Spec, len(interaction.CustomizationArgSpecs))
	for i, spec := range interaction.CustomizationArgSpecs {
		specs[i] = custargs.Spec{
			Name:         spec.Name,
			Description:  spec.Description,
			Schema:       blob.DeepCopyMap(spec.Schema),
			DefaultValue: blob.DeepCopy(spec.DefaultValue),
		}
	}
	return specs, nil
}

// CanHaveSolution reports whether interactionID supports a solution, using
// the newest snapshot at or below version.
func (r *Registry) CanHaveSolution(interactionID string, version int) (bool, error) {
	snapVersion := -1
	for _, v := range r.versions {
		if v <= version {
			snapVersion = v
		}
	}
	if snapVersion < 0 {
		return false, fmt.Errorf("%w %d", ErrUnknownSchemaVersion, version)
	}

	interaction, ok := r.snapshots[snapVersion].Interactions[interactionID]
	if !ok {
		return false, fmt.Errorf("%w %q at schema version %d", ErrUnknownInteraction, interactionID, snapVersion)
	}
	return interaction.CanHaveSolution, nil
}
