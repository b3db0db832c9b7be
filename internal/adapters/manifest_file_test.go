package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comlinepm/internal/types"
)

func sampleManifest() types.Manifest {
	return types.Manifest{
		Name:        "demo",
		Namespace:   "demo",
		Version:     "1.0.0",
		Description: "demo package",
		Dependencies: []types.Dependency{
			{ID: "utils", Source: types.SourceKindLocal, Path: "../utils"},
			{ID: "acme.http", Source: types.SourceKindRemote, Registry: "main", Name: "acme.http", Requirement: "^1.2.0"},
		},
		Build: types.BuildMeta{Metadata: map[string]string{"target": "rust"}},
	}
}

func TestManifestFileAdapterRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
	}{
		{name: "yaml", fileName: "package.yaml"},
		{name: "yml", fileName: "package.yml"},
		{name: "toml", fileName: "package.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, tt.fileName), []byte{}, 0o644))
			adapter := NewManifestFileAdapter()
			require.True(t, adapter.IsPackageRoot(root))

			want := sampleManifest()
			require.NoError(t, adapter.Save(root, want))
			got, err := adapter.Load(root)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "save must reuse the existing manifest file")
		})
	}
}

func TestManifestFileAdapterSaveCreatesYAML(t *testing.T) {
	root := t.TempDir()
	adapter := NewManifestFileAdapter()
	assert.False(t, adapter.IsPackageRoot(root))

	require.NoError(t, adapter.Save(root, sampleManifest()))
	_, err := os.Stat(filepath.Join(root, DefaultManifestFileName))
	require.NoError(t, err)
	assert.True(t, adapter.IsPackageRoot(root))
}

func TestManifestFileAdapterLoadErrors(t *testing.T) {
	adapter := NewManifestFileAdapter()

	_, err := adapter.Load(t.TempDir())
	require.Error(t, err)
	if diff := cmp.Diff(errbuilder.CodeNotFound, errbuilder.CodeOf(err)); diff != "" {
		t.Fatalf("unexpected error code (-want +got):\n%s", diff)
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.yaml"), []byte("dependencies: [oops"), 0o644))
	_, err = adapter.Load(root)
	require.Error(t, err)
	if diff := cmp.Diff(errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err)); diff != "" {
		t.Fatalf("unexpected error code (-want +got):\n%s", diff)
	}
}
