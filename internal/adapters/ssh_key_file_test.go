package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSHKeyFileAdapterResolveKey(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "id_ecdsa"), []byte("ecdsa"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "id_rsa"), []byte("rsa"), 0o600))
	explicit := filepath.Join(t.TempDir(), "deploy_key")
	require.NoError(t, os.WriteFile(explicit, []byte("deploy"), 0o600))

	tests := []struct {
		name       string
		adapter    SSHKeyFileAdapter
		wantData   string
		wantSource string
		wantErr    bool
	}{
		{
			name:       "explicit path wins",
			adapter:    SSHKeyFileAdapter{Path: explicit, HomeDir: home},
			wantData:   "deploy",
			wantSource: explicit,
		},
		{
			name:       "first default present",
			adapter:    SSHKeyFileAdapter{HomeDir: home},
			wantData:   "ecdsa",
			wantSource: filepath.Join(home, ".ssh", "id_ecdsa"),
		},
		{
			name:     "explicit path missing",
			adapter:  SSHKeyFileAdapter{Path: filepath.Join(home, "nope")},
			wantErr:  true,
		},
		{
			name:     "no defaults present",
			adapter:  SSHKeyFileAdapter{HomeDir: t.TempDir()},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, source, err := tt.adapter.ResolveKey(t.Context())
			if tt.wantErr {
				require.Error(t, err)
				if diff := cmp.Diff(errbuilder.CodeNotFound, errbuilder.CodeOf(err)); diff != "" {
					t.Fatalf("code mismatch (-want +got):\n%s", diff)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(data))
			assert.Equal(t, tt.wantSource, source)
		})
	}
}
