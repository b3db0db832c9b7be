package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/core"
	"comlinepm/internal/types"
)

const initialVersion = "0.1.0"

// CreatePackage scaffolds <parent>/<name> with a minimal manifest. An
// existing package root is only overwritten with Force.
func (s Service) CreatePackage(ctx context.Context, req CreatePackageRequest) (CreatePackageResult, error) {
	name := strings.TrimSpace(req.Name)
	if !core.NamespacePattern.MatchString(name) {
		return CreatePackageResult{}, &types.ConfigError{Kind: types.ErrConfigInvalid, Field: "name", Value: req.Name}
	}
	parent := strings.TrimSpace(req.Parent)
	if parent == "" {
		parent = "."
	}
	root := filepath.Join(parent, name)
	if s.Manifests.IsPackageRoot(root) && !req.Force {
		return CreatePackageResult{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg("package already exists at " + root)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return CreatePackageResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create package directory").
			WithCause(err)
	}
	manifest := types.Manifest{
		Name:      name,
		Namespace: name,
		Version:   initialVersion,
	}
	if err := s.Manifests.Save(root, manifest); err != nil {
		return CreatePackageResult{}, err
	}
	log.Ctx(ctx).Debug().Str("root", root).Msg("package created")
	return CreatePackageResult{Root: root, Manifest: manifest}, nil
}
