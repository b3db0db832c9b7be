package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/types"
)

// DefaultOutputDirName is the artifact directory under the package root.
const DefaultOutputDirName = "target"

// buildRun walks the build state machine and keeps its transition log.
type buildRun struct {
	ctx   context.Context
	s     Service
	path  string
	state types.BuildState
	log   []types.BuildTransition
}

func (r *buildRun) to(next types.BuildState) {
	r.log = append(r.log, types.BuildTransition{From: r.state, To: next, At: r.s.now()})
	log.Ctx(r.ctx).Debug().
		Str("package", r.path).
		Str("from", string(r.state)).
		Str("to", string(next)).
		Msg("build state")
	r.state = next
}

func (r *buildRun) fail(kind error, err error) (types.BuildContext, error) {
	r.to(types.BuildStateFailed)
	return types.Unbuilt{PackagePath: r.path, Final: types.BuildStateFailed, Log: r.log}, &types.BuildError{Kind: kind, Path: r.path, Err: err}
}

// Build validates and freezes the manifest at req.PackagePath and produces
// the package archive. Only a successful build yields types.Built; every
// failure returns types.Unbuilt together with a *types.BuildError.
func (s Service) Build(ctx context.Context, req BuildRequest) (types.BuildContext, error) {
	path := strings.TrimSpace(req.PackagePath)
	run := &buildRun{ctx: ctx, s: s, path: path, state: types.BuildStateUninitialized}
	if path == "" {
		return run.fail(types.ErrBuildNoManifest, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package path is empty"))
	}

	run.to(types.BuildStateValidating)
	if !s.Manifests.IsPackageRoot(path) {
		return run.fail(types.ErrBuildNoManifest, nil)
	}
	manifest, err := s.Manifests.Load(path)
	if err != nil {
		if errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
			return run.fail(types.ErrBuildNoManifest, err)
		}
		return run.fail(types.ErrBuildConfig, &types.ConfigError{Kind: types.ErrConfigInvalid, Field: "manifest", Value: path, Err: err})
	}

	run.to(types.BuildStateFreezing)
	frozen, err := s.Freezer.Freeze(ctx, manifest)
	if err != nil {
		return run.fail(types.ErrBuildConfig, err)
	}

	outputDir := strings.TrimSpace(req.OutputDir)
	if outputDir == "" {
		outputDir = filepath.Join(path, DefaultOutputDirName)
	}
	artifacts, err := s.Artifacts.Produce(ctx, path, outputDir, frozen)
	if err != nil {
		return run.fail(types.ErrBuildArtifact, err)
	}

	run.to(types.BuildStateBuilt)
	return types.Built{
		PackagePath: path,
		Config:      frozen,
		Artifacts:   artifacts,
		Log:         run.log,
	}, nil
}
