package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"comlinepm/internal/core"
	"comlinepm/internal/types"
)

// AddDependency records a local or remote dependency depending on req.Local.
func (s Service) AddDependency(ctx context.Context, req AddDependencyRequest) (AddDependencyResult, error) {
	if req.Local {
		return s.AddLocal(ctx, req.PackageRoot, req.Identifier)
	}
	return s.AddRemote(ctx, req.PackageRoot, req.Identifier)
}

// AddLocal records the package at path as a dependency of the package at
// packageRoot. A relative path is taken relative to packageRoot. The
// manifest is untouched unless path exists and is a package root.
func (s Service) AddLocal(ctx context.Context, packageRoot string, path string) (AddDependencyResult, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyPathNotFound, Path: path}
	}
	depPath := trimmed
	if !filepath.IsAbs(depPath) {
		depPath = filepath.Join(packageRoot, depPath)
	}
	depPath = filepath.Clean(depPath)

	info, err := os.Stat(depPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyPathNotFound, Path: depPath}
		}
		return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyIO, Path: depPath, Err: err}
	}
	if !info.IsDir() || !s.Manifests.IsPackageRoot(depPath) {
		return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyNotAPackage, Path: depPath}
	}
	depManifest, err := s.Manifests.Load(depPath)
	if err != nil {
		return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyNotAPackage, Path: depPath, Err: err}
	}

	recorded := depPath
	if rel, err := filepath.Rel(packageRoot, depPath); err == nil {
		recorded = filepath.ToSlash(rel)
	}
	dep := core.LocalDependency(depManifest, recorded)
	if dep.ID == "" {
		dep.ID = filepath.Base(depPath)
	}
	return s.recordDependency(ctx, packageRoot, dep)
}

// AddRemote records a registry dependency. The registry is not contacted;
// existence is checked when dependencies are resolved.
func (s Service) AddRemote(ctx context.Context, packageRoot string, spec string) (AddDependencyResult, error) {
	dep, err := core.ParseRemoteSpec(spec)
	if err != nil {
		return AddDependencyResult{}, err
	}
	return s.recordDependency(ctx, packageRoot, dep)
}

func (s Service) recordDependency(ctx context.Context, packageRoot string, dep types.Dependency) (AddDependencyResult, error) {
	manifest, err := s.Manifests.Load(packageRoot)
	if err != nil {
		return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyIO, Path: packageRoot, Err: err}
	}
	updated, replaced := core.UpsertDependency(manifest, dep)
	if err := s.Manifests.Save(packageRoot, updated); err != nil {
		return AddDependencyResult{}, &types.DependencyError{Kind: types.ErrDependencyIO, Path: packageRoot, Err: err}
	}
	log.Ctx(ctx).Debug().
		Str("id", dep.ID).
		Str("source", string(dep.Source)).
		Bool("replaced", replaced).
		Msg("dependency recorded")
	return AddDependencyResult{Dependency: dep, Replaced: replaced}, nil
}
