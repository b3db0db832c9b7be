package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comlinepm/internal/adapters"
	"comlinepm/internal/core"
	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeAuth hands out a session for every login unless fail names the
// registry.
type fakeAuth struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	expiry time.Time
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{calls: map[string]int{}, fail: map[string]error{}}
}

func (a *fakeAuth) Login(ctx context.Context, method string, req types.LoginRequest) (types.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[req.Registry.Name]++
	if err := a.fail[req.Registry.Name]; err != nil {
		return types.Session{}, err
	}
	return types.Session{
		Registry:  req.Registry.Name,
		Method:    method,
		Subject:   req.Target,
		Token:     types.Secret("token-" + req.Registry.Name),
		ExpiresAt: a.expiry,
	}, nil
}

func (a *fakeAuth) Methods() []types.MethodInfo {
	return []types.MethodInfo{{Name: "ssh", Description: "SSH Authentication with a Private Key"}}
}

func (a *fakeAuth) loginCount(registry string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[registry]
}

type pushFunc func(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error)

func (f pushFunc) Push(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
	return f(ctx, target, session, upload)
}

// fakePublishers routes by registry name and falls back to the real
// scheme-based factory.
type fakePublishers struct {
	byName   map[string]ports.PublisherPort
	fallback ports.PublisherFactoryPort
}

func (f fakePublishers) PublisherFor(target types.RegistryTarget) (ports.PublisherPort, error) {
	if p, ok := f.byName[target.Name]; ok {
		return p, nil
	}
	if f.fallback != nil {
		return f.fallback.PublisherFor(target)
	}
	return nil, errors.New("no publisher for " + target.Name)
}

type staticCredentials map[string]types.Secret

func (c staticCredentials) Credential(method string) (types.Secret, bool) {
	secret, ok := c[method]
	return secret, ok
}

func newTestService(t *testing.T, registries adapters.StaticRegistryConfig, publishers map[string]ports.PublisherPort) (Service, *fakeAuth) {
	t.Helper()
	auth := newFakeAuth()
	svc := Service{
		Manifests:   adapters.NewManifestFileAdapter(),
		Artifacts:   adapters.NewArtifactTarAdapter(),
		Registries:  registries,
		Publishers:  fakePublishers{byName: publishers, fallback: adapters.NewPublisherFactory(nil, 1, 1, adapters.S3Settings{})},
		Sessions:    adapters.NewSessionMemoryAdapter(),
		Credentials: staticCredentials{},
		Auth:        auth,
		Freezer:     core.NewFreezer(),
		Clock:       func() time.Time { return testNow },
	}
	return svc, auth
}

func writePackage(t *testing.T, dir string, manifest types.Manifest) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, adapters.NewManifestFileAdapter().Save(dir, manifest))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.cl"), []byte("module demo\n"), 0o644))
	return dir
}

func buildDemo(t *testing.T, svc Service) types.BuildContext {
	t.Helper()
	root := writePackage(t, filepath.Join(t.TempDir(), "demo"), types.Manifest{
		Name:      "demo",
		Namespace: "demo",
		Version:   "1.0.0",
	})
	bc, err := svc.Build(t.Context(), BuildRequest{PackagePath: root})
	require.NoError(t, err)
	return bc
}

type authFunc func(method string, req types.LoginRequest) (types.Session, error)

func (f authFunc) Login(ctx context.Context, method string, req types.LoginRequest) (types.Session, error) {
	return f(method, req)
}

func (f authFunc) Methods() []types.MethodInfo { return nil }
