package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/types"
)

// Login authenticates against a registry and caches the session for later
// publishes. A registry that is not configured can still be logged into by
// name; the session is stored only when the login succeeds.
func (s Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	name := types.RegistryKey(req.Registry)
	if name == "" {
		return LoginResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("registry name is required")
	}
	target, found, err := s.Registries.Lookup(name)
	if err != nil {
		return LoginResult{}, err
	}
	if !found {
		target = types.RegistryTarget{Name: name}
	}

	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = strings.TrimSpace(target.Method)
	}
	if method == "" {
		method = defaultLoginMethod
	}
	loginTarget := strings.TrimSpace(req.Target)
	if loginTarget == "" {
		loginTarget = target.LoginTarget()
	}
	secret := req.Credential
	if secret == "" && s.Credentials != nil {
		secret, _ = s.Credentials.Credential(method)
	}

	session, err := s.Auth.Login(ctx, method, types.LoginRequest{
		Registry:   target,
		Target:     loginTarget,
		Credential: types.NewCredential(method, secret, req.CredentialExpiresAt),
	})
	if err != nil {
		return LoginResult{}, err
	}
	s.Sessions.Put(session)
	log.Ctx(ctx).Info().
		Str("registry", session.Registry).
		Str("method", session.Method).
		Str("subject", session.Subject).
		Msg("logged in")
	return LoginResult{
		Registry:  session.Registry,
		Method:    session.Method,
		Subject:   session.Subject,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout drops the cached session for a registry. Sessions live only as long
// as the process, so Removed is false unless this process logged in.
func (s Service) Logout(ctx context.Context, registry string) LogoutResult {
	name := types.RegistryKey(registry)
	removed := s.Sessions.Delete(name)
	log.Ctx(ctx).Debug().Str("registry", name).Bool("removed", removed).Msg("logged out")
	return LogoutResult{Registry: name, Removed: removed}
}

// ListRegistries returns the configured registries sorted by name.
func (s Service) ListRegistries() ([]types.RegistryTarget, error) {
	names := s.Registries.Names()
	out := make([]types.RegistryTarget, 0, len(names))
	for _, name := range names {
		target, found, err := s.Registries.Lookup(name)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, target)
		}
	}
	return out, nil
}

// Methods lists every registered authentication method.
func (s Service) Methods() []types.MethodInfo {
	if s.Auth == nil {
		return nil
	}
	return s.Auth.Methods()
}
