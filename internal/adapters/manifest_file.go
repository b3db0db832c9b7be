package adapters

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// ManifestFileNames are the recognised package root markers, in lookup order.
var ManifestFileNames = []string{"package.yaml", "package.yml", "package.toml"}

const DefaultManifestFileName = "package.yaml"

type ManifestFileAdapter struct{}

func NewManifestFileAdapter() ManifestFileAdapter {
	return ManifestFileAdapter{}
}

func (a ManifestFileAdapter) IsPackageRoot(dir string) bool {
	_, ok := findManifest(dir)
	return ok
}

func (a ManifestFileAdapter) Load(root string) (types.Manifest, error) {
	path, ok := findManifest(root)
	if !ok {
		return types.Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("manifest not found in " + root)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read manifest").
			WithCause(err)
	}
	var manifest types.Manifest
	if isTOML(path) {
		err = toml.Unmarshal(data, &manifest)
	} else {
		err = yaml.Unmarshal(data, &manifest)
	}
	if err != nil {
		return types.Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse manifest " + path).
			WithCause(err)
	}
	return manifest, nil
}

func (a ManifestFileAdapter) Save(root string, manifest types.Manifest) error {
	if strings.TrimSpace(root) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package root is empty")
	}
	path, ok := findManifest(root)
	if !ok {
		path = filepath.Join(root, DefaultManifestFileName)
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(manifest)
	} else {
		data, err = yaml.Marshal(manifest)
	}
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode manifest").
			WithCause(err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return err
	}
	log.Debug().Str("path", path).Int("dependencies", len(manifest.Dependencies)).Msg("manifest written")
	return nil
}

func findManifest(dir string) (string, bool) {
	if strings.TrimSpace(dir) == "" {
		return "", false
	}
	for _, name := range ManifestFileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// writeFileAtomic writes through a temp file in the same directory so a
// reader never observes a half-written manifest.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create temp file").
			WithCause(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write " + path).
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write " + path).
			WithCause(err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to set permissions on " + path).
			WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to replace " + path).
			WithCause(err)
	}
	return nil
}

var _ ports.ManifestStorePort = ManifestFileAdapter{}
