package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Kind sentinels. Every typed error below unwraps to exactly one of these,
// so callers match with errors.Is and extract context with errors.As.
var (
	ErrConfigIncomplete   = errors.New("config incomplete")
	ErrConfigInvalid      = errors.New("config invalid")
	ErrConfigMissingField = errors.New("config field missing")

	ErrDependencyPathNotFound = errors.New("dependency path not found")
	ErrDependencyNotAPackage  = errors.New("dependency path is not a package")
	ErrDependencyIO           = errors.New("manifest read/write failed")
	ErrDependencyInvalid      = errors.New("dependency spec invalid")

	ErrBuildNoManifest = errors.New("no manifest")
	ErrBuildConfig     = errors.New("manifest could not be frozen")
	ErrBuildArtifact   = errors.New("artifact production failed")

	ErrAuthUnknownMethod     = errors.New("unknown authentication method")
	ErrAuthMissingCredential = errors.New("missing credential")
	ErrAuthCredentialExpired = errors.New("credential expired")
	ErrAuthKeyUnavailable    = errors.New("private key unavailable")
	ErrAuthProviderFailure   = errors.New("authentication provider failure")

	ErrPublishNotBuilt            = errors.New("package is not built")
	ErrPublishUnknownRegistry     = errors.New("unknown registry")
	ErrPublishAuthFailed          = errors.New("registry authentication failed")
	ErrPublishPushFailed          = errors.New("registry push failed")
	ErrPublishTimeout             = errors.New("publish deadline exceeded")
	ErrPublishPerRegistryFailures = errors.New("publish failed")
)

// ConfigError reports a manifest that cannot be frozen or a frozen field
// that is absent.
type ConfigError struct {
	Kind  error
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case ErrConfigIncomplete:
		return fmt.Sprintf("%v: %s is not set", e.Kind, e.Field)
	case ErrConfigMissingField:
		return fmt.Sprintf("%v: %s", e.Kind, e.Field)
	}
	msg := fmt.Sprintf("%v: %s %q", e.Kind, e.Field, e.Value)
	return withCause(msg, e.Err)
}

func (e *ConfigError) Unwrap() []error { return causes(e.Kind, e.Err) }

func (e *ConfigError) Code() errbuilder.ErrCode {
	if e.Kind == ErrConfigMissingField {
		return errbuilder.CodeNotFound
	}
	return errbuilder.CodeInvalidArgument
}

// DependencyError reports a dependency that could not be recorded. Path is
// the dependency path or the package root whose manifest failed.
type DependencyError struct {
	Kind error
	Path string
	Spec string
	Err  error
}

func (e *DependencyError) Error() string {
	subject := e.Path
	if e.Spec != "" {
		subject = e.Spec
	}
	return withCause(fmt.Sprintf("%v: %s", e.Kind, subject), e.Err)
}

func (e *DependencyError) Unwrap() []error { return causes(e.Kind, e.Err) }

func (e *DependencyError) Code() errbuilder.ErrCode {
	switch e.Kind {
	case ErrDependencyPathNotFound:
		return errbuilder.CodeNotFound
	case ErrDependencyNotAPackage, ErrDependencyInvalid:
		return errbuilder.CodeInvalidArgument
	default:
		return errbuilder.CodeInternal
	}
}

type BuildError struct {
	Kind error
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return withCause(fmt.Sprintf("%v at %s", e.Kind, e.Path), e.Err)
}

func (e *BuildError) Unwrap() []error { return causes(e.Kind, e.Err) }

func (e *BuildError) Code() errbuilder.ErrCode {
	switch e.Kind {
	case ErrBuildNoManifest:
		return errbuilder.CodeNotFound
	case ErrBuildConfig:
		return errbuilder.CodeInvalidArgument
	default:
		return errbuilder.CodeInternal
	}
}

// MethodInfo describes a registered authentication method.
type MethodInfo struct {
	Name        string
	Description string
}

type AuthError struct {
	Kind   error
	Method string
	Target string
	Err    error
	// Available lists every registered method for ErrAuthUnknownMethod.
	Available []MethodInfo
}

func (e *AuthError) Error() string {
	if e.Kind == ErrAuthUnknownMethod {
		var b strings.Builder
		fmt.Fprintf(&b, "authentication method %q is not valid, registered methods are:", e.Method)
		for _, m := range e.Available {
			fmt.Fprintf(&b, "\n - %s: %s", m.Name, m.Description)
		}
		return b.String()
	}
	msg := fmt.Sprintf("%v: method %s", e.Kind, e.Method)
	if e.Target != "" {
		msg += fmt.Sprintf(" target %s", e.Target)
	}
	return withCause(msg, e.Err)
}

func (e *AuthError) Unwrap() []error { return causes(e.Kind, e.Err) }

func (e *AuthError) Code() errbuilder.ErrCode {
	switch e.Kind {
	case ErrAuthUnknownMethod, ErrAuthMissingCredential, ErrAuthCredentialExpired:
		return errbuilder.CodeInvalidArgument
	case ErrAuthKeyUnavailable:
		return errbuilder.CodeFailedPrecondition
	default:
		return errbuilder.CodePermissionDenied
	}
}

// PublishError is either a single-registry failure (Registry set) or the
// aggregate of every failed registry (Kind ErrPublishPerRegistryFailures).
type PublishError struct {
	Kind      error
	Registry  string
	Err       error
	Failures  []*PublishError
	Attempted int
}

func (e *PublishError) Error() string {
	switch e.Kind {
	case ErrPublishNotBuilt:
		return withCause(e.Kind.Error(), e.Err)
	case ErrPublishPerRegistryFailures:
		var b strings.Builder
		fmt.Fprintf(&b, "%v for %d of %d registries:", e.Kind, len(e.Failures), e.Attempted)
		for _, f := range e.Failures {
			fmt.Fprintf(&b, "\n - %s", f.Error())
		}
		return b.String()
	}
	return withCause(fmt.Sprintf("%s: %v", e.Registry, e.Kind), e.Err)
}

func (e *PublishError) Unwrap() []error {
	out := causes(e.Kind, e.Err)
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

func (e *PublishError) Code() errbuilder.ErrCode {
	switch e.Kind {
	case ErrPublishNotBuilt:
		return errbuilder.CodeFailedPrecondition
	case ErrPublishUnknownRegistry:
		return errbuilder.CodeNotFound
	case ErrPublishAuthFailed:
		return errbuilder.CodePermissionDenied
	default:
		return errbuilder.CodeInternal
	}
}

// FailedRegistries returns the registry names of an aggregate failure in
// request order.
func (e *PublishError) FailedRegistries() []string {
	if e.Registry != "" {
		return []string{e.Registry}
	}
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Registry)
	}
	return names
}

func causes(kind error, err error) []error {
	if err == nil {
		return []error{kind}
	}
	return []error{kind, err}
}

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + ": " + err.Error()
}
