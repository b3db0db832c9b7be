package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/types"
)

// NamespacePattern is the accepted shape of package namespaces and remote
// package names: dot-separated lowercase segments.
var NamespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*(\.[a-z][a-z0-9_-]*)*$`)

type Freezer struct{}

func NewFreezer() Freezer {
	return Freezer{}
}

// Freeze validates the manifest and returns its immutable snapshot. The
// manifest itself is never modified.
func (f Freezer) Freeze(ctx context.Context, manifest types.Manifest) (types.FrozenConfig, error) {
	if err := ValidateManifest(manifest); err != nil {
		return types.FrozenConfig{}, err
	}
	frozen := types.NewFrozenConfig(manifest)

	namespace, _ := frozen.Namespace()
	version, _ := frozen.Version()
	assert.NotEmpty(ctx, namespace, "frozen namespace must be set")
	assert.NotEmpty(ctx, version, "frozen version must be set")
	log.Ctx(ctx).Debug().
		Str("namespace", namespace).
		Str("version", version).
		Int("dependencies", len(manifest.Dependencies)).
		Msg("manifest frozen")
	return frozen, nil
}

// ValidateManifest checks required fields first (ErrConfigIncomplete) and
// format rules second (ErrConfigInvalid).
func ValidateManifest(manifest types.Manifest) error {
	if strings.TrimSpace(manifest.Namespace) == "" {
		return &types.ConfigError{Kind: types.ErrConfigIncomplete, Field: "namespace"}
	}
	if strings.TrimSpace(manifest.Version) == "" {
		return &types.ConfigError{Kind: types.ErrConfigIncomplete, Field: "version"}
	}
	if !NamespacePattern.MatchString(manifest.Namespace) {
		return &types.ConfigError{
			Kind:  types.ErrConfigInvalid,
			Field: "namespace",
			Value: manifest.Namespace,
			Err:   fmt.Errorf("must match %s", NamespacePattern.String()),
		}
	}
	if _, err := semver.StrictNewVersion(manifest.Version); err != nil {
		return &types.ConfigError{
			Kind:  types.ErrConfigInvalid,
			Field: "version",
			Value: manifest.Version,
			Err:   err,
		}
	}
	seen := make(map[string]struct{}, len(manifest.Dependencies))
	for i, dep := range manifest.Dependencies {
		if err := validateDependency(i, dep); err != nil {
			return err
		}
		if _, dup := seen[dep.ID]; dup {
			return &types.ConfigError{
				Kind:  types.ErrConfigInvalid,
				Field: fmt.Sprintf("dependencies[%d].id", i),
				Value: dep.ID,
				Err:   fmt.Errorf("duplicate dependency id"),
			}
		}
		seen[dep.ID] = struct{}{}
	}
	for key := range manifest.Build.Metadata {
		if strings.TrimSpace(key) == "" {
			return &types.ConfigError{
				Kind:  types.ErrConfigInvalid,
				Field: "build.metadata",
				Value: key,
				Err:   fmt.Errorf("metadata keys must not be empty"),
			}
		}
	}
	return nil
}

func validateDependency(index int, dep types.Dependency) error {
	field := func(name string) string {
		return fmt.Sprintf("dependencies[%d].%s", index, name)
	}
	if strings.TrimSpace(dep.ID) == "" {
		return &types.ConfigError{Kind: types.ErrConfigInvalid, Field: field("id"), Err: fmt.Errorf("id must not be empty")}
	}
	switch dep.Source {
	case types.SourceKindLocal:
		if strings.TrimSpace(dep.Path) == "" {
			return &types.ConfigError{Kind: types.ErrConfigInvalid, Field: field("path"), Value: dep.ID, Err: fmt.Errorf("local dependency requires a path")}
		}
	case types.SourceKindRemote:
		if !NamespacePattern.MatchString(remoteName(dep)) {
			return &types.ConfigError{Kind: types.ErrConfigInvalid, Field: field("name"), Value: remoteName(dep)}
		}
		if dep.Requirement != "" {
			if _, err := semver.NewConstraint(dep.Requirement); err != nil {
				return &types.ConfigError{Kind: types.ErrConfigInvalid, Field: field("requirement"), Value: dep.Requirement, Err: err}
			}
		}
	default:
		return &types.ConfigError{Kind: types.ErrConfigInvalid, Field: field("source"), Value: string(dep.Source), Err: fmt.Errorf("source must be local or remote")}
	}
	return nil
}

func remoteName(dep types.Dependency) string {
	if dep.Name != "" {
		return dep.Name
	}
	return dep.ID
}
