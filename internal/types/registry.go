package types

import (
	"strings"
	"time"
)

// Secret is opaque credential material. It formats as "***" so it can be
// passed around and logged without leaking.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

func (s Secret) GoString() string { return s.String() }

// Reveal returns the raw secret value.
func (s Secret) Reveal() string { return string(s) }

// Credential is the material presented to a single login call. It is never
// persisted by this module.
type Credential struct {
	Kind      CredentialKind
	Provider  string
	Secret    Secret
	ExpiresAt time.Time
}

// NewCredential tags secret with the kind the login method consumes:
// ssh takes a key passphrase, github a personal access token and every
// other method an OIDC identity token for that provider.
func NewCredential(method string, secret Secret, expiresAt time.Time) Credential {
	c := Credential{Secret: secret, ExpiresAt: expiresAt}
	switch method {
	case "ssh":
		c.Kind = CredentialKindSSH
	case "github":
		c.Kind = CredentialKindPAT
	default:
		c.Kind = CredentialKindOIDC
		c.Provider = method
	}
	return c
}

func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// RegistryTarget is a named registry endpoint plus the login defaults used
// when publish has to authenticate implicitly.
type RegistryTarget struct {
	Name   string `mapstructure:"name" yaml:"name"`
	URL    string `mapstructure:"url" yaml:"url"`
	Method string `mapstructure:"method" yaml:"method,omitempty"`
	Target string `mapstructure:"target" yaml:"target,omitempty"`
}

// RegistryKey is the canonical form of a registry name. Names are
// case-insensitive, so sessions and publish results are keyed on this.
func RegistryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LoginTarget returns the identity a login for this registry is bound to.
func (r RegistryTarget) LoginTarget() string {
	if r.Target != "" {
		return r.Target
	}
	return r.Name
}

// Session is the post-condition of a successful login: an opaque token a
// publisher can present to the registry.
type Session struct {
	Registry  string
	Method    string
	Subject   string
	Token     Secret
	ExpiresAt time.Time
}

func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// PackageUpload is what a publisher pushes: the frozen identity plus the
// archive produced by the build.
type PackageUpload struct {
	Namespace string
	Version   string
	Archive   Artifact
	Frozen    []byte
}

// PushReceipt is the registry's answer to a push. RemoteID is optional.
type PushReceipt struct {
	Registry string
	RemoteID string
	Location string
}

// LoginRequest is what a single login consumes. Credential is optional for
// methods that do not need it; Target defaults to the registry's login
// target.
type LoginRequest struct {
	Registry   RegistryTarget
	Target     string
	Credential Credential
}
