//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"comlinepm/internal/adapters"
	"comlinepm/internal/app"
	"comlinepm/internal/types"
	"comlinepm/tests/testutil"
)

type registryRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Auth   string `json:"auth"`
	Digest string `json:"digest"`
	Size   int    `json:"size"`
	Form   string `json:"form"`
}

func TestPublishWithOIDCExchangeWithTestcontainers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers integration in short mode")
	}

	ctx := t.Context()
	endpoint, cleanup := startRegistryMock(ctx, t)
	t.Cleanup(cleanup)

	v := viper.New()
	v.Set("registries.ci.url", endpoint)
	v.Set("registries.ci.method", "gitlab")
	v.Set("registries.ci.target", "acme")
	v.Set("registries.gone.url", endpoint+"/missing-prefix")
	v.Set("registries.gone.method", "gitlab")

	service := app.NewService(app.ServiceConfig{
		Viper:               v,
		Env:                 adapters.CredentialEnv{IDToken: testutil.IdentityToken(t, "project_path:acme/demo", time.Hour)},
		PublishWorkers:      2,
		PublishTimeout:      30 * time.Second,
		PublishRetries:      1,
		PublishRetryDelayMs: 50,
	})

	root := testutil.WritePackage(t, filepath.Join(t.TempDir(), "demo"), types.Manifest{
		Name:      "demo",
		Namespace: "demo",
		Version:   "1.0.0",
	})
	bc, err := service.Build(ctx, app.BuildRequest{PackagePath: root})
	require.NoError(t, err)

	report, err := service.Publish(ctx, bc, []string{"ci"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Equal(t, "demo@1.0.0", report.Results[0].Receipt.RemoteID)

	// ci already holds this exact archive, so only gone fails.
	report, err = service.Publish(ctx, bc, []string{"ci", "gone"})
	require.ErrorIs(t, err, types.ErrPublishPushFailed)
	var pubErr *types.PublishError
	require.ErrorAs(t, err, &pubErr)
	require.Equal(t, []string{"gone"}, pubErr.FailedRegistries())
	require.Equal(t, "demo@1.0.0", report.Results[0].Receipt.RemoteID)

	requests, err := fetchRegistryRequests(endpoint)
	require.NoError(t, err)
	built := bc.(types.Built)
	archive, _ := built.PrimaryArtifact()

	exchanges, pushes := 0, 0
	for _, req := range requests {
		switch {
		case strings.HasSuffix(req.Path, "/oidc/token"):
			exchanges++
			require.Contains(t, req.Form, "scope=publish%3A")
		case req.Path == "/api/packages/demo/1.0.0":
			pushes++
			require.Equal(t, http.MethodPut, req.Method)
			require.Equal(t, "Bearer registry-token", req.Auth)
			require.Equal(t, archive.Digest, req.Digest)
			require.Equal(t, int(archive.Size), req.Size)
		}
	}
	// The ci session is reused; only gone needs a second exchange.
	require.Equal(t, 2, exchanges)
	require.Equal(t, 2, pushes)
}

func startRegistryMock(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "python:3.12-alpine",
		ExposedPorts: []string{"8080/tcp"},
		Cmd:          []string{"python", "-c", registryMockScript},
		WaitingFor:   wait.ForListeningPort("8080/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%s", host, port.Port())
	cleanup := func() {
		_ = container.Terminate(ctx)
	}
	return endpoint, cleanup
}

func fetchRegistryRequests(endpoint string) ([]registryRequest, error) {
	resp, err := http.Get(endpoint + "/requests")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	var requests []registryRequest
	if err := json.NewDecoder(resp.Body).Decode(&requests); err != nil {
		return nil, err
	}
	return requests, nil
}

const registryMockScript = `
import json
import re
from http.server import BaseHTTPRequestHandler, ThreadingHTTPServer

requests = []
packages = {}
push_path = re.compile(r"^/api/packages/([^/]+)/([^/]+)$")

class Handler(BaseHTTPRequestHandler):
    def _body(self):
        length = int(self.headers.get("Content-Length", "0"))
        return self.rfile.read(length) if length else b""

    def _json(self, status, payload):
        data = json.dumps(payload).encode()
        self.send_response(status)
        self.send_header("Content-Type", "application/json")
        self.send_header("Content-Length", str(len(data)))
        self.end_headers()
        self.wfile.write(data)

    def _record(self, body, form=""):
        requests.append({
            "method": self.command,
            "path": self.path.split("?")[0],
            "auth": self.headers.get("Authorization", ""),
            "digest": self.headers.get("X-Package-Digest", ""),
            "size": len(body),
            "form": form,
        })

    def do_GET(self):
        if self.path == "/requests":
            self._json(200, requests)
            return
        self._json(404, {"error": "not_found"})

    def do_POST(self):
        body = self._body()
        self._record(body, body.decode())
        if self.path.endswith("/oidc/token") and b"subject_token=" in body:
            self._json(200, {"access_token": "registry-token", "token_type": "Bearer", "expires_in": 300})
            return
        self._json(400, {"error": "invalid_request"})

    def do_PUT(self):
        body = self._body()
        self._record(body)
        if self.headers.get("Authorization") != "Bearer registry-token":
            self._json(401, {"error": "unauthorized"})
            return
        match = push_path.match(self.path)
        if not match:
            self._json(404, {"error": "not_found"})
            return
        key = match.group(1) + "@" + match.group(2)
        if key in packages:
            self._json(409, {"error": "already exists", "id": key, "digest": packages[key]})
            return
        packages[key] = self.headers.get("X-Package-Digest", "")
        self._json(201, {"id": key, "location": self.path})

    def log_message(self, format, *args):
        pass

ThreadingHTTPServer(("0.0.0.0", 8080), Handler).serve_forever()
`
