package app

import (
	"time"

	"comlinepm/internal/types"
)

type CreatePackageRequest struct {
	Parent string
	Name   string
	Force  bool
}

type CreatePackageResult struct {
	Root     string
	Manifest types.Manifest
}

type AddDependencyRequest struct {
	PackageRoot string
	// Identifier is a path when Local is set, otherwise
	// "[registry/]name[@requirement]".
	Identifier string
	Local      bool
}

type AddDependencyResult struct {
	Dependency types.Dependency
	Replaced   bool
}

type BuildRequest struct {
	PackagePath string
	// OutputDir defaults to <PackagePath>/target.
	OutputDir string
}

type LoginRequest struct {
	Registry string
	// Method defaults to the registry's configured method, then "ssh".
	Method     string
	Target     string
	Credential types.Secret
	// CredentialExpiresAt is zero when the credential does not expire.
	CredentialExpiresAt time.Time
}

type LoginResult struct {
	Registry  string
	Method    string
	Subject   string
	ExpiresAt time.Time
}

type LogoutResult struct {
	Registry string
	Removed  bool
}

// RegistryResult is the outcome of publishing to one registry.
type RegistryResult struct {
	Registry string
	Outcome  types.PublishOutcome
	Receipt  types.PushReceipt
	Duration time.Duration
	Err      error
}

// PublishReport lists per-registry results in request order.
type PublishReport struct {
	Namespace string
	Version   string
	Results   []RegistryResult
}
