// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"comlinepm/internal/adapters"
	"comlinepm/internal/types"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WritePackage creates a package root at dir with the given manifest and a
// single source file.
func WritePackage(t *testing.T, dir string, manifest types.Manifest) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, adapters.NewManifestFileAdapter().Save(dir, manifest))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.cl"), []byte("module "+manifest.Name+"\n"), 0644))
	return dir
}

// WriteSSHKey writes an unencrypted OpenSSH ed25519 private key into a
// temp dir and returns its path.
func WriteSSHKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "comlinepm-test")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

// IdentityToken returns an HS256-signed CI identity token. Registries under
// test only inspect its claims.
func IdentityToken(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}
