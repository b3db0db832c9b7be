package core

import (
	"fmt"
	"strings"

	semver "github.com/Masterminds/semver/v3"

	"comlinepm/internal/types"
)

// ParseRemoteSpec parses "[registry/]name[@requirement]" into a remote
// dependency. Existence in any registry is not checked here; that belongs
// to dependency resolution.
func ParseRemoteSpec(raw string) (types.Dependency, error) {
	spec := strings.TrimSpace(raw)
	if spec == "" {
		return types.Dependency{}, invalidSpec(raw, fmt.Errorf("dependency must not be empty"))
	}
	var requirement string
	if at := strings.LastIndex(spec, "@"); at >= 0 {
		requirement = strings.TrimSpace(spec[at+1:])
		spec = spec[:at]
		if requirement == "" {
			return types.Dependency{}, invalidSpec(raw, fmt.Errorf("empty version requirement"))
		}
		if _, err := semver.NewConstraint(requirement); err != nil {
			return types.Dependency{}, invalidSpec(raw, err)
		}
	}
	var registry string
	name := spec
	if slash := strings.Index(spec, "/"); slash >= 0 {
		registry = strings.TrimSpace(spec[:slash])
		name = strings.TrimSpace(spec[slash+1:])
		if registry == "" {
			return types.Dependency{}, invalidSpec(raw, fmt.Errorf("empty registry qualifier"))
		}
	}
	if !NamespacePattern.MatchString(name) {
		return types.Dependency{}, invalidSpec(raw, fmt.Errorf("package name %q must match %s", name, NamespacePattern.String()))
	}
	return types.Dependency{
		ID:          name,
		Source:      types.SourceKindRemote,
		Registry:    registry,
		Name:        name,
		Requirement: requirement,
	}, nil
}

// LocalDependency builds the record for a dependency on another package on
// disk. The id is the dependency's namespace, falling back to its name.
func LocalDependency(dependencyManifest types.Manifest, path string) types.Dependency {
	id := strings.TrimSpace(dependencyManifest.Namespace)
	if id == "" {
		id = strings.TrimSpace(dependencyManifest.Name)
	}
	return types.Dependency{
		ID:     id,
		Source: types.SourceKindLocal,
		Path:   path,
	}
}

// UpsertDependency returns a copy of manifest with dep recorded. An entry
// with the same id is replaced in place, so repeated adds never grow the
// list. replaced reports whether an entry was overwritten.
func UpsertDependency(manifest types.Manifest, dep types.Dependency) (types.Manifest, bool) {
	out := manifest.Clone()
	for i, existing := range out.Dependencies {
		if existing.ID == dep.ID {
			out.Dependencies[i] = dep
			return out, true
		}
	}
	out.Dependencies = append(out.Dependencies, dep)
	return out, false
}

func invalidSpec(raw string, err error) error {
	return &types.DependencyError{Kind: types.ErrDependencyInvalid, Spec: raw, Err: err}
}
