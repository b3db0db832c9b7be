// Package oidc holds the federated login providers. Each provider is a
// ResourceServer registered under a method name; the authentication
// layer dispatches to it without knowing how the token is obtained.
package oidc

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"comlinepm/internal/types"
)

// ErrNoIdentityToken is returned by a resource server when no identity
// token is available for the exchange.
var ErrNoIdentityToken = errors.New("no identity token available")

// Grant is the input to one federated login.
type Grant struct {
	Registry   types.RegistryTarget
	Target     string
	Credential types.Secret
	Audience   string
}

// SessionSink receives the token a resource server obtained. A server
// delivers at most once and only after the exchange succeeded.
type SessionSink interface {
	Deliver(token types.Secret, subject string, expiresAt time.Time)
}

// ResourceServer performs a provider-specific federated token exchange.
type ResourceServer interface {
	Authenticate(ctx context.Context, grant Grant, sink SessionSink) error
}

// ResourceServerFunc adapts a function to ResourceServer.
type ResourceServerFunc func(ctx context.Context, grant Grant, sink SessionSink) error

func (f ResourceServerFunc) Authenticate(ctx context.Context, grant Grant, sink SessionSink) error {
	return f(ctx, grant, sink)
}

// Provider is one entry of the capability table.
type Provider struct {
	Name        string
	Description string
	Server      ResourceServer
}

// Registry maps provider names to resource servers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: map[string]Provider{}}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name] = p
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Providers returns every registered provider sorted by name.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Config wires the built-in providers.
type Config struct {
	Exchanger           Exchanger
	ActionsRequestURL   string
	ActionsRequestToken string
}

// DefaultProviders is the static provider table.
func DefaultProviders(cfg Config) []Provider {
	return []Provider{
		{
			Name:        "gitlab",
			Description: "Gitlab OpenID Connect Authentication with a CI ID Token",
			Server:      GitlabServer{Exchanger: cfg.Exchanger},
		},
		{
			Name:        "github_oidc",
			Description: "Github OpenID Connect Authentication with a Token",
			Server: GithubActionsServer{
				Exchanger:    cfg.Exchanger,
				RequestURL:   cfg.ActionsRequestURL,
				RequestToken: cfg.ActionsRequestToken,
			},
		},
	}
}

// StagingSink buffers a delivered token until the caller decides to commit
// it.
type StagingSink struct {
	mu        sync.Mutex
	delivered bool
	token     types.Secret
	subject   string
	expiresAt time.Time
}

func (s *StagingSink) Deliver(token types.Secret, subject string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = true
	s.token = token
	s.subject = subject
	s.expiresAt = expiresAt
}

// Staged returns the delivered token, if any.
func (s *StagingSink) Staged() (token types.Secret, subject string, expiresAt time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.subject, s.expiresAt, s.delivered && s.token != ""
}
