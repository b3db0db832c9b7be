package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"comlinepm/internal/shared"
)

// GitlabServer exchanges a GitLab CI ID token. The token is the login
// credential, normally CI_JOB_JWT_V2 or an id_tokens entry of the job.
type GitlabServer struct {
	Exchanger Exchanger
}

func (s GitlabServer) Authenticate(ctx context.Context, grant Grant, sink SessionSink) error {
	raw := strings.TrimSpace(grant.Credential.Reveal())
	if raw == "" {
		return ErrNoIdentityToken
	}
	return s.Exchanger.Exchange(ctx, grant, raw, sink)
}

// GithubActionsServer exchanges a GitHub Actions OIDC token. An explicit
// credential wins; otherwise the token is requested from the Actions
// runtime endpoint.
type GithubActionsServer struct {
	Exchanger    Exchanger
	RequestURL   string
	RequestToken string
}

type actionsTokenResponse struct {
	Value string `json:"value"`
}

func (s GithubActionsServer) Authenticate(ctx context.Context, grant Grant, sink SessionSink) error {
	raw := strings.TrimSpace(grant.Credential.Reveal())
	if raw == "" {
		token, err := s.requestToken(ctx, grant.Audience)
		if err != nil {
			return err
		}
		raw = token
	}
	return s.Exchanger.Exchange(ctx, grant, raw, sink)
}

func (s GithubActionsServer) requestToken(ctx context.Context, audience string) (string, error) {
	if strings.TrimSpace(s.RequestURL) == "" || strings.TrimSpace(s.RequestToken) == "" {
		return "", ErrNoIdentityToken
	}
	requestURL, err := url.Parse(s.RequestURL)
	if err != nil {
		return "", fmt.Errorf("invalid actions token url: %w", err)
	}
	if audience != "" {
		query := requestURL.Query()
		query.Set("audience", audience)
		requestURL.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create actions token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.RequestToken)
	req.Header.Set("Accept", "application/json")
	resp, err := s.Exchanger.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("request actions token: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request actions token: %w", shared.HTTPStatusError(resp.StatusCode, requestURL.String(), body))
	}
	var payload actionsTokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode actions token response: %w", err)
	}
	if strings.TrimSpace(payload.Value) == "" {
		return "", ErrNoIdentityToken
	}
	return payload.Value, nil
}
