package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/ports"
	"comlinepm/internal/shared"
	"comlinepm/internal/types"
)

// RegistryHTTPAdapter pushes archives to an HTTP registry with
// PUT <url>/api/packages/<namespace>/<version>. Transport errors, 5xx and
// 429 responses are retried with capped exponential backoff.
type RegistryHTTPAdapter struct {
	Client     *http.Client
	Retries    int
	RetryDelay time.Duration
}

const defaultHTTPPushRetries = 3
const defaultHTTPPushRetryDelay = 200 * time.Millisecond
const defaultHTTPPushTimeout = 60 * time.Second
const maxHTTPPushRetryDelay = 2 * time.Second

func NewRegistryHTTPAdapter(client *http.Client, retries int, retryDelayMs int) RegistryHTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPPushTimeout}
	}
	return RegistryHTTPAdapter{
		Client:     client,
		Retries:    normalizeHTTPRetries(retries),
		RetryDelay: normalizeHTTPRetryDelay(retryDelayMs),
	}
}

func (a RegistryHTTPAdapter) Push(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
	if err := validateUploadIdentity(upload); err != nil {
		return types.PushReceipt{}, err
	}
	endpoint := strings.TrimRight(strings.TrimSpace(target.URL), "/")
	if endpoint == "" {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("registry url is empty")
	}
	pushURL := fmt.Sprintf("%s/api/packages/%s/%s", endpoint, url.PathEscape(upload.Namespace), url.PathEscape(upload.Version))

	retries := normalizeHTTPRetries(a.Retries)
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.PushReceipt{}, err
		}
		receipt, retry, err := a.pushOnce(ctx, pushURL, session, upload)
		if err == nil {
			receipt.Registry = target.Name
			return receipt, nil
		}
		lastErr = err
		if !retry || attempt == retries-1 {
			return types.PushReceipt{}, err
		}
		delay := a.retryDelay(attempt)
		log.Debug().Str("registry", target.Name).Int("attempt", attempt+1).Dur("delay", delay).Err(err).Msg("push failed, retrying")
		select {
		case <-ctx.Done():
			return types.PushReceipt{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return types.PushReceipt{}, lastErr
}

// pushResponse is the registry's JSON answer. On 409 the registry reports
// the digest of the stored archive.
type pushResponse struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Digest   string `json:"digest"`
}

func (a RegistryHTTPAdapter) pushOnce(ctx context.Context, pushURL string, session types.Session, upload types.PackageUpload) (types.PushReceipt, bool, error) {
	digest, err := UploadDigest(upload)
	if err != nil {
		return types.PushReceipt{}, false, err
	}
	file, err := os.Open(upload.Archive.Path)
	if err != nil {
		return types.PushReceipt{}, false, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open archive").
			WithCause(err)
	}
	defer file.Close()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, pushURL, file)
	if err != nil {
		return types.PushReceipt{}, false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create push request").
			WithCause(err)
	}
	if upload.Archive.Size > 0 {
		req.ContentLength = upload.Archive.Size
	}
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set("X-Package-Digest", digest)
	if token := session.Token.Reveal(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPPushTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.PushReceipt{}, false, ctx.Err()
		}
		return types.PushReceipt{}, true, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("push failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var payload pushResponse
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	location := payload.Location
	if location == "" {
		location = pushURL
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return types.PushReceipt{RemoteID: payload.ID, Location: location}, false, nil
	}
	cause := shared.HTTPStatusError(resp.StatusCode, pushURL, body)
	switch resp.StatusCode {
	case http.StatusConflict:
		stored := payload.Digest
		if stored == "" {
			stored = resp.Header.Get("X-Package-Digest")
		}
		if stored == digest {
			log.Debug().Str("url", pushURL).Msg("identical package already published")
			return types.PushReceipt{RemoteID: payload.ID, Location: location}, false, nil
		}
		return types.PushReceipt{}, false, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(upload.Namespace + "@" + upload.Version + " already published with a different archive").
			WithCause(cause)
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.PushReceipt{}, false, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("registry rejected credentials").
			WithCause(cause)
	}
	retry := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
	return types.PushReceipt{}, retry, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("push failed").
		WithCause(cause)
}

func (a RegistryHTTPAdapter) retryDelay(attempt int) time.Duration {
	delay := normalizeHTTPRetryDelayDuration(a.RetryDelay) * time.Duration(1<<attempt)
	if delay > maxHTTPPushRetryDelay {
		delay = maxHTTPPushRetryDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}

func normalizeHTTPRetries(value int) int {
	if value <= 0 {
		return defaultHTTPPushRetries
	}
	return value
}

func normalizeHTTPRetryDelay(value int) time.Duration {
	return normalizeHTTPRetryDelayDuration(time.Duration(value) * time.Millisecond)
}

func normalizeHTTPRetryDelayDuration(delay time.Duration) time.Duration {
	if delay <= 0 {
		return defaultHTTPPushRetryDelay
	}
	return delay
}

var _ ports.PublisherPort = RegistryHTTPAdapter{}
