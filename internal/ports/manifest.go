package ports

import "comlinepm/internal/types"

// ManifestStorePort reads and writes the manifest at a package root.
type ManifestStorePort interface {
	// IsPackageRoot reports whether dir contains a recognizable manifest.
	IsPackageRoot(dir string) bool
	Load(root string) (types.Manifest, error)
	// Save writes the manifest back in the encoding already used at root,
	// creating a YAML manifest when none exists.
	Save(root string, manifest types.Manifest) error
}
