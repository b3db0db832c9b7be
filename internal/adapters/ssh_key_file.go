package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/ports"
)

// DefaultSSHKeyNames are tried in order under ~/.ssh when no explicit key
// path is configured.
var DefaultSSHKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

type SSHKeyFileAdapter struct {
	// Path is an explicit key file; when empty the defaults under HomeDir
	// are searched.
	Path    string
	HomeDir string
}

func NewSSHKeyFileAdapter(path string, homeDir string) SSHKeyFileAdapter {
	if strings.TrimSpace(homeDir) == "" {
		homeDir, _ = os.UserHomeDir()
	}
	return SSHKeyFileAdapter{Path: path, HomeDir: homeDir}
}

func (a SSHKeyFileAdapter) ResolveKey(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if path := strings.TrimSpace(a.Path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("failed to read ssh key " + path).
				WithCause(err)
		}
		return data, path, nil
	}
	if strings.TrimSpace(a.HomeDir) == "" {
		return nil, "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("no ssh key configured and home directory is unknown")
	}
	var tried []string
	for _, name := range DefaultSSHKeyNames {
		path := filepath.Join(a.HomeDir, ".ssh", name)
		data, err := os.ReadFile(path)
		if err == nil {
			log.Debug().Str("path", path).Msg("using ssh key")
			return data, path, nil
		}
		tried = append(tried, path)
	}
	return nil, "", errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg("no ssh key found, tried " + strings.Join(tried, ", "))
}

var _ ports.KeyResolverPort = SSHKeyFileAdapter{}
