package ports

import (
	"context"

	"comlinepm/internal/types"
)

// ArtifactPort turns a package root plus its frozen config into publishable
// artifacts. The first returned artifact is the package archive.
type ArtifactPort interface {
	Produce(ctx context.Context, packageRoot string, outputDir string, frozen types.FrozenConfig) ([]types.Artifact, error)
}
