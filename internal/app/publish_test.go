package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"comlinepm/internal/adapters"
	"comlinepm/internal/ports"
	"comlinepm/internal/telemetry"
	"comlinepm/internal/types"
)

func okPush(calls *atomic.Int32) pushFunc {
	return func(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
		if calls != nil {
			calls.Add(1)
		}
		return types.PushReceipt{RemoteID: upload.Namespace + "@" + upload.Version, Location: target.URL}, nil
	}
}

func failPush(err error) pushFunc {
	return func(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
		return types.PushReceipt{}, err
	}
}

func TestPublishToFileRegistry(t *testing.T) {
	registryDir := t.TempDir()
	svc, auth := newTestService(t, adapters.StaticRegistryConfig{
		"local": {URL: "file://" + filepath.ToSlash(registryDir)},
	}, nil)
	svc.Metrics = telemetry.NewPublishMetrics()
	bc := buildDemo(t, svc)

	report, err := svc.Publish(t.Context(), bc, []string{"local"})
	require.NoError(t, err)
	assert.Equal(t, "demo", report.Namespace)
	assert.Equal(t, "1.0.0", report.Version)
	require.Len(t, report.Results, 1)
	result := report.Results[0]
	assert.Equal(t, types.PublishOutcomeSuccess, result.Outcome)
	assert.Equal(t, "demo@1.0.0", result.Receipt.RemoteID)

	archive := filepath.Join(registryDir, "demo", "1.0.0.tar.gz")
	assert.Equal(t, archive, result.Receipt.Location)
	assert.FileExists(t, archive)
	frozen, err := os.ReadFile(filepath.Join(registryDir, "demo", "1.0.0.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(frozen), "namespace: demo")
	assert.Equal(t, 1, auth.loginCount("local"))

	families, err := svc.Metrics.Gatherer().Gather()
	require.NoError(t, err)
	names := []string{}
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "comlinepm_publish_total")

	again, err := svc.Publish(t.Context(), bc, []string{"local"})
	require.NoError(t, err)
	require.Len(t, again.Results, 1)
	assert.Equal(t, archive, again.Results[0].Receipt.Location)
}

func TestPublishRetryAfterPartialFailureWithFileRegistries(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	svc, auth := newTestService(t, adapters.StaticRegistryConfig{
		"a": {URL: "file://" + filepath.ToSlash(dirA)},
		"b": {URL: "file://" + filepath.ToSlash(dirB)},
	}, nil)
	auth.fail["b"] = errors.New("token revoked")
	bc := buildDemo(t, svc)

	_, err := svc.Publish(t.Context(), bc, []string{"a", "b"})
	var pubErr *types.PublishError
	require.ErrorAs(t, err, &pubErr)
	if diff := cmp.Diff([]string{"b"}, pubErr.FailedRegistries()); diff != "" {
		t.Fatalf("unexpected failed registries (-want +got):\n%s", diff)
	}
	assert.FileExists(t, filepath.Join(dirA, "demo", "1.0.0.tar.gz"))

	report, err := svc.Publish(t.Context(), bc, []string{"a"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, types.PublishOutcomeSuccess, report.Results[0].Outcome)
	assert.NoFileExists(t, filepath.Join(dirB, "demo", "1.0.0.tar.gz"))
}

func TestPublishRejectsDifferentArchiveForPublishedVersion(t *testing.T) {
	registryDir := t.TempDir()
	svc, _ := newTestService(t, adapters.StaticRegistryConfig{
		"local": {URL: "file://" + filepath.ToSlash(registryDir)},
	}, nil)
	first := buildDemo(t, svc)
	_, err := svc.Publish(t.Context(), first, []string{"local"})
	require.NoError(t, err)

	// Same identity, different package contents.
	second := buildDemo(t, svc)
	built := second.(types.Built)
	archive, _ := built.PrimaryArtifact()
	require.NoError(t, os.WriteFile(archive.Path, []byte("rebuilt"), 0o644))
	built.Artifacts[0].Digest = ""

	_, err = svc.Publish(t.Context(), built, []string{"local"})
	require.ErrorIs(t, err, types.ErrPublishPushFailed)
	var pubErr *types.PublishError
	require.ErrorAs(t, err, &pubErr)
	require.Len(t, pubErr.Failures, 1)
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(pubErr.Failures[0].Err))
}

func TestPublishAggregatesPerRegistryFailures(t *testing.T) {
	var pushesA atomic.Int32
	svc, _ := newTestService(t, adapters.StaticRegistryConfig{
		"a": {URL: "https://a.example.com"},
		"b": {URL: "https://b.example.com"},
	}, map[string]ports.PublisherPort{
		"a": okPush(&pushesA),
		"b": failPush(errors.New("disk full")),
	})
	bc := buildDemo(t, svc)

	report, err := svc.Publish(t.Context(), bc, []string{"a", "b"})
	require.ErrorIs(t, err, types.ErrPublishPerRegistryFailures)
	require.ErrorIs(t, err, types.ErrPublishPushFailed)

	var pubErr *types.PublishError
	require.ErrorAs(t, err, &pubErr)
	if diff := cmp.Diff([]string{"b"}, pubErr.FailedRegistries()); diff != "" {
		t.Fatalf("unexpected failed registries (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, pubErr.Attempted)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotContains(t, err.Error(), " - a:")

	require.Len(t, report.Results, 2)
	assert.Equal(t, types.PublishOutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, types.PublishOutcomeFailure, report.Results[1].Outcome)
	assert.Equal(t, int32(1), pushesA.Load())

	_, err = svc.Publish(t.Context(), bc, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), pushesA.Load())
}

func TestPublishRequiresBuiltContext(t *testing.T) {
	svc, _ := newTestService(t, adapters.StaticRegistryConfig{"a": {URL: "https://a.example.com"}},
		map[string]ports.PublisherPort{"a": okPush(nil)})

	tests := []struct {
		name       string
		bc         types.BuildContext
		registries []string
	}{
		{name: "nil context", bc: nil, registries: []string{"a"}},
		{name: "never built", bc: types.Unbuilt{}, registries: []string{"a"}},
		{name: "failed build", bc: types.Unbuilt{Final: types.BuildStateFailed}, registries: []string{"a"}},
		{name: "no registries", bc: types.Unbuilt{}, registries: nil},
		{name: "nil pointer", bc: (*types.Built)(nil), registries: []string{"a"}},
		{name: "built without artifacts", bc: types.Built{}, registries: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Publish(t.Context(), tt.bc, tt.registries)
			require.ErrorIs(t, err, types.ErrPublishNotBuilt)
			var pubErr *types.PublishError
			require.ErrorAs(t, err, &pubErr)
			assert.Equal(t, errbuilder.CodeFailedPrecondition, pubErr.Code())
		})
	}
}

func TestPublishEmptyRegistryList(t *testing.T) {
	svc, auth := newTestService(t, adapters.StaticRegistryConfig{}, nil)
	bc := buildDemo(t, svc)
	built := bc.(types.Built)

	for _, registries := range [][]string{nil, {}, {" ", ""}} {
		report, err := svc.Publish(t.Context(), &built, registries)
		require.NoError(t, err)
		assert.Empty(t, report.Results)
		assert.Equal(t, "demo", report.Namespace)
	}
	assert.Empty(t, auth.calls)
}

func TestPublishPerRegistryErrorKinds(t *testing.T) {
	svc, auth := newTestService(t, adapters.StaticRegistryConfig{
		"a":      {URL: "https://a.example.com"},
		"denied": {URL: "https://denied.example.com", Method: "github"},
		"ftp":    {URL: "ftp://ftp.example.com"},
	}, map[string]ports.PublisherPort{"a": okPush(nil)})
	auth.fail["denied"] = &types.AuthError{Kind: types.ErrAuthProviderFailure, Method: "github"}
	bc := buildDemo(t, svc)

	tests := []struct {
		registry string
		wantKind error
	}{
		{registry: "missing", wantKind: types.ErrPublishUnknownRegistry},
		{registry: "denied", wantKind: types.ErrPublishAuthFailed},
		{registry: "ftp", wantKind: types.ErrPublishPushFailed},
	}
	for _, tt := range tests {
		t.Run(tt.registry, func(t *testing.T) {
			_, err := svc.Publish(t.Context(), bc, []string{"a", tt.registry})
			require.ErrorIs(t, err, tt.wantKind)
			var pubErr *types.PublishError
			require.ErrorAs(t, err, &pubErr)
			if diff := cmp.Diff([]string{tt.registry}, pubErr.FailedRegistries()); diff != "" {
				t.Fatalf("unexpected failed registries (-want +got):\n%s", diff)
			}
		})
	}

	_, ok := svc.Sessions.Get("denied")
	assert.False(t, ok)
	_, err := svc.Publish(t.Context(), bc, []string{"denied"})
	require.ErrorIs(t, err, types.ErrAuthProviderFailure)
}

func TestPublishReusesValidSession(t *testing.T) {
	svc, auth := newTestService(t, adapters.StaticRegistryConfig{"a": {URL: "https://a.example.com"}},
		map[string]ports.PublisherPort{"a": okPush(nil)})
	bc := buildDemo(t, svc)

	for range 3 {
		_, err := svc.Publish(t.Context(), bc, []string{"a"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, auth.loginCount("a"))

	svc.Sessions.Put(types.Session{Registry: "a", Token: "stale", ExpiresAt: testNow.Add(-time.Minute)})
	_, err := svc.Publish(t.Context(), bc, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, auth.loginCount("a"))
}

func TestPublishUsesRegistryLoginDefaults(t *testing.T) {
	var seen types.Session
	svc, _ := newTestService(t, adapters.StaticRegistryConfig{
		"corp": {URL: "https://corp.example.com", Method: "github", Target: "acme"},
	}, map[string]ports.PublisherPort{
		"corp": pushFunc(func(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
			seen = session
			return types.PushReceipt{}, nil
		}),
	})
	bc := buildDemo(t, svc)

	report, err := svc.Publish(t.Context(), bc, []string{"corp"})
	require.NoError(t, err)
	assert.Equal(t, "github", seen.Method)
	assert.Equal(t, "acme", seen.Subject)
	assert.Equal(t, "corp", report.Results[0].Receipt.Registry)
}

func TestPublishTimeout(t *testing.T) {
	svc, _ := newTestService(t, adapters.StaticRegistryConfig{
		"fast": {URL: "https://fast.example.com"},
		"slow": {URL: "https://slow.example.com"},
	}, map[string]ports.PublisherPort{
		"fast": okPush(nil),
		"slow": pushFunc(func(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
			<-ctx.Done()
			return types.PushReceipt{}, ctx.Err()
		}),
	})
	svc.PublishOpts.Timeout = 50 * time.Millisecond
	bc := buildDemo(t, svc)

	report, err := svc.Publish(t.Context(), bc, []string{"fast", "slow"})
	require.ErrorIs(t, err, types.ErrPublishTimeout)
	var pubErr *types.PublishError
	require.ErrorAs(t, err, &pubErr)
	if diff := cmp.Diff([]string{"slow"}, pubErr.FailedRegistries()); diff != "" {
		t.Fatalf("unexpected failed registries (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.PublishOutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, types.PublishOutcomeTimeout, report.Results[1].Outcome)
}

func TestPublishBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	slowPush := pushFunc(func(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			current := peak.Load()
			if n <= current || peak.CompareAndSwap(current, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return types.PushReceipt{}, nil
	})
	registries := adapters.StaticRegistryConfig{}
	publishers := map[string]ports.PublisherPort{}
	names := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	for _, name := range names {
		registries[name] = types.RegistryTarget{URL: "https://" + name + ".example.com"}
		publishers[name] = slowPush
	}
	svc, _ := newTestService(t, registries, publishers)
	svc.PublishOpts.Workers = 2
	bc := buildDemo(t, svc)

	report, err := svc.Publish(t.Context(), bc, append(names, "r1", " r2 "))
	require.NoError(t, err)
	require.Len(t, report.Results, len(names))
	for i, result := range report.Results {
		assert.Equal(t, names[i], result.Registry)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPublishUnknownRegistryNamesConfiguredOnes(t *testing.T) {
	svc, _ := newTestService(t, adapters.StaticRegistryConfig{
		"b": {URL: "https://b.example.com"},
		"a": {URL: "https://a.example.com"},
	}, nil)
	bc := buildDemo(t, svc)

	_, err := svc.Publish(t.Context(), bc, []string{"typo"})
	require.ErrorIs(t, err, types.ErrPublishUnknownRegistry)
	assert.Contains(t, err.Error(), "configured registries: a, b")

	svc.Registries = adapters.StaticRegistryConfig{}
	_, err = svc.Publish(t.Context(), bc, []string{"typo"})
	assert.Contains(t, err.Error(), "no registries are configured")
}

func TestPublishRegistryNamesAreCaseInsensitive(t *testing.T) {
	v := viper.New()
	v.Set("registries.local.url", "https://local.example.com")
	var calls atomic.Int32
	svc, auth := newTestService(t, nil, map[string]ports.PublisherPort{"local": okPush(&calls)})
	svc.Registries = adapters.NewRegistryConfigViperAdapter(v)
	bc := buildDemo(t, svc)

	login, err := svc.Login(t.Context(), LoginRequest{Registry: "Local"})
	require.NoError(t, err)
	assert.Equal(t, "local", login.Registry)

	report, err := svc.Publish(t.Context(), bc, []string{"LOCAL", "local"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "local", report.Results[0].Registry)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, auth.loginCount("local"), "the session from the mixed-case login should be reused")

	assert.Equal(t, LogoutResult{Registry: "local", Removed: true}, svc.Logout(t.Context(), " Local "))
}

func TestPublishRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := telemetry.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	svc, _ := newTestService(t, adapters.StaticRegistryConfig{
		"ok":   {URL: "https://ok.example.com"},
		"down": {URL: "https://down.example.com"},
	}, map[string]ports.PublisherPort{
		"ok":   okPush(nil),
		"down": failPush(errors.New("connection refused")),
	})
	svc.Tracer = tp.Tracer(telemetry.TracerName)
	bc := buildDemo(t, svc)

	_, err := svc.Publish(t.Context(), bc, []string{"ok", "down"})
	require.Error(t, err)

	statuses := map[string]codes.Code{}
	var root sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "publish":
			root = span
		case "publish.registry":
			for _, kv := range span.Attributes() {
				if kv.Key == "registry" {
					statuses[kv.Value.AsString()] = span.Status().Code
				}
			}
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, codes.Error, root.Status().Code)
	if diff := cmp.Diff(map[string]codes.Code{"ok": codes.Unset, "down": codes.Error}, statuses); diff != "" {
		t.Fatalf("unexpected registry span statuses (-want +got):\n%s", diff)
	}
}
