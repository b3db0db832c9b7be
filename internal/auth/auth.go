// Package auth dispatches registry logins by method name. Every method
// either returns a usable session or a typed *types.AuthError; it never
// stores anything itself.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"comlinepm/internal/auth/oidc"
	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// LoginFunc performs one method's login.
type LoginFunc func(ctx context.Context, req types.LoginRequest) (types.Session, error)

// Method is one entry of the dispatch table.
type Method struct {
	Name        string
	Description string
	Login       LoginFunc
}

// Options configures the built-in methods.
type Options struct {
	HTTPClient   *http.Client
	GithubAPIURL string
	OIDCAudience string
	Keys         ports.KeyResolverPort
	OIDC         *oidc.Registry
	Now          func() time.Time
}

const (
	DefaultGithubAPIURL = "https://api.github.com"
	DefaultOIDCAudience = "comlinepm"
)

type Authenticator struct {
	methods map[string]Method
	now     func() time.Time
}

// NewAuthenticator builds the method table: ssh, github and one entry per
// OIDC provider registered in opts.OIDC.
func NewAuthenticator(opts Options) *Authenticator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	apiURL := strings.TrimRight(strings.TrimSpace(opts.GithubAPIURL), "/")
	if apiURL == "" {
		apiURL = DefaultGithubAPIURL
	}
	audience := strings.TrimSpace(opts.OIDCAudience)
	if audience == "" {
		audience = DefaultOIDCAudience
	}
	providers := opts.OIDC
	if providers == nil {
		providers = oidc.NewRegistry(oidc.DefaultProviders(oidc.Config{
			Exchanger: oidc.Exchanger{Client: client, Now: now},
		})...)
	}

	a := &Authenticator{methods: map[string]Method{}, now: now}
	a.Register(sshMethod(opts.Keys, now))
	a.Register(githubMethod(client, apiURL))
	for _, provider := range providers.Providers() {
		a.Register(oidcMethod(provider, audience, now))
	}
	return a
}

// Register adds or replaces a method.
func (a *Authenticator) Register(m Method) {
	a.methods[m.Name] = m
}

// Methods lists registered methods sorted by name.
func (a *Authenticator) Methods() []types.MethodInfo {
	out := make([]types.MethodInfo, 0, len(a.methods))
	for _, m := range a.methods {
		out = append(out, types.MethodInfo{Name: m.Name, Description: m.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Login dispatches to the named method. The returned session is bound to
// req.Registry.Name and stamped with the method name.
func (a *Authenticator) Login(ctx context.Context, method string, req types.LoginRequest) (types.Session, error) {
	m, ok := a.methods[method]
	if !ok {
		return types.Session{}, &types.AuthError{
			Kind:      types.ErrAuthUnknownMethod,
			Method:    method,
			Target:    req.Target,
			Available: a.Methods(),
		}
	}
	if req.Target == "" {
		req.Target = req.Registry.LoginTarget()
	}
	if req.Credential.Expired(a.now()) {
		return types.Session{}, &types.AuthError{
			Kind:   types.ErrAuthCredentialExpired,
			Method: method,
			Target: req.Target,
			Err:    fmt.Errorf("expired at %s", req.Credential.ExpiresAt.UTC().Format(time.RFC3339)),
		}
	}
	log.Ctx(ctx).Debug().Str("method", method).Str("registry", req.Registry.Name).Str("target", req.Target).Msg("login")
	session, err := m.Login(ctx, req)
	if err != nil {
		var authErr *types.AuthError
		if errors.As(err, &authErr) {
			return types.Session{}, err
		}
		return types.Session{}, &types.AuthError{Kind: types.ErrAuthProviderFailure, Method: method, Target: req.Target, Err: err}
	}
	if !session.Valid(a.now()) {
		return types.Session{}, &types.AuthError{
			Kind:   types.ErrAuthProviderFailure,
			Method: method,
			Target: req.Target,
			Err:    errors.New("method returned an unusable session"),
		}
	}
	session.Registry = req.Registry.Name
	session.Method = method
	return session, nil
}

func oidcMethod(provider oidc.Provider, audience string, now func() time.Time) Method {
	return Method{
		Name:        provider.Name,
		Description: provider.Description,
		Login: func(ctx context.Context, req types.LoginRequest) (types.Session, error) {
			sink := &oidc.StagingSink{}
			err := provider.Server.Authenticate(ctx, oidc.Grant{
				Registry:   req.Registry,
				Target:     req.Target,
				Credential: req.Credential.Secret,
				Audience:   audience,
			}, sink)
			if errors.Is(err, oidc.ErrNoIdentityToken) {
				return types.Session{}, &types.AuthError{Kind: types.ErrAuthMissingCredential, Method: provider.Name, Target: req.Target, Err: err}
			}
			if err != nil {
				return types.Session{}, &types.AuthError{Kind: types.ErrAuthProviderFailure, Method: provider.Name, Target: req.Target, Err: err}
			}
			token, subject, expiresAt, ok := sink.Staged()
			if !ok {
				return types.Session{}, &types.AuthError{
					Kind:   types.ErrAuthProviderFailure,
					Method: provider.Name,
					Target: req.Target,
					Err:    errors.New("provider reported success without a token"),
				}
			}
			return types.Session{Subject: subject, Token: token, ExpiresAt: expiresAt}, nil
		},
	}
}

var _ ports.AuthenticatorPort = (*Authenticator)(nil)
