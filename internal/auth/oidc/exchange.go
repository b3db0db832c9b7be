package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"comlinepm/internal/shared"
	"comlinepm/internal/types"
)

const (
	tokenExchangeGrantType = "urn:ietf:params:oauth:grant-type:token-exchange"
	jwtTokenType           = "urn:ietf:params:oauth:token-type:jwt"
	accessTokenType        = "urn:ietf:params:oauth:token-type:access_token"
	tokenEndpointPath      = "/oidc/token"
	defaultExchangeTimeout = 30 * time.Second
)

// Exchanger trades an identity token for a registry access token at
// <registry url>/oidc/token using an RFC 8693 token exchange.
type Exchanger struct {
	Client *http.Client
	Now    func() time.Time
}

type exchangeResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
}

type exchangeErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange inspects rawToken, posts it to the registry and delivers the
// issued access token to sink. Nothing is delivered on failure.
func (e Exchanger) Exchange(ctx context.Context, grant Grant, rawToken string, sink SessionSink) error {
	now := e.now()
	identity, err := InspectIdentityToken(rawToken, now)
	if err != nil {
		return err
	}
	endpoint, err := tokenEndpoint(grant.Registry.URL)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("grant_type", tokenExchangeGrantType)
	form.Set("subject_token", identity.Raw)
	form.Set("subject_token_type", jwtTokenType)
	form.Set("requested_token_type", accessTokenType)
	if grant.Audience != "" {
		form.Set("audience", grant.Audience)
	}
	if grant.Target != "" {
		form.Set("scope", "publish:"+grant.Target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client().Do(req)
	if err != nil {
		return fmt.Errorf("token exchange with %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		var payload exchangeErrorResponse
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("token exchange rejected: status=%d error=%s %s", resp.StatusCode, payload.Error, payload.ErrorDescription)
		}
		return fmt.Errorf("token exchange rejected: %w", shared.HTTPStatusError(resp.StatusCode, endpoint, body))
	}
	var payload exchangeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode token exchange response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return fmt.Errorf("token exchange response has no access_token")
	}

	expiresAt := identity.ExpiresAt
	if payload.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	subject := identity.Subject
	if subject == "" {
		subject = grant.Target
	}
	log.Debug().Str("registry", grant.Registry.Name).Str("issuer", identity.Issuer).Str("subject", subject).Msg("identity token exchanged")
	sink.Deliver(types.Secret(payload.AccessToken), subject, expiresAt)
	return nil
}

func (e Exchanger) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Exchanger) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return &http.Client{Timeout: defaultExchangeTimeout}
}

func tokenEndpoint(registryURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(registryURL))
	if err != nil {
		return "", fmt.Errorf("invalid registry url %q: %w", registryURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("registry url %q does not support token exchange", registryURL)
	}
	return strings.TrimRight(parsed.String(), "/") + tokenEndpointPath, nil
}
