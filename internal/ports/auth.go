package ports

import (
	"context"

	"comlinepm/internal/types"
)

// SessionStorePort caches authenticated sessions per registry name. Safe
// for concurrent use.
type SessionStorePort interface {
	Get(registry string) (types.Session, bool)
	Put(session types.Session)
	Delete(registry string) bool
}

// CredentialSourcePort yields credential material for implicit logins, e.g.
// from the environment. ok is false when nothing is available.
type CredentialSourcePort interface {
	Credential(method string) (secret types.Secret, ok bool)
}

// KeyResolverPort locates private key material for SSH authentication.
type KeyResolverPort interface {
	// ResolveKey returns the PEM bytes of a private key and where they came
	// from. It fails when no key can be found.
	ResolveKey(ctx context.Context) (pem []byte, source string, err error)
}

// AuthenticatorPort dispatches a login to a named method.
type AuthenticatorPort interface {
	Login(ctx context.Context, method string, req types.LoginRequest) (types.Session, error)
	Methods() []types.MethodInfo
}
