package types

type SourceKind string

const (
	SourceKindLocal  SourceKind = "local"
	SourceKindRemote SourceKind = "remote"
)

// BuildState is a stage of the build pipeline. Built and Failed are terminal.
type BuildState string

const (
	BuildStateUninitialized BuildState = "uninitialized"
	BuildStateValidating    BuildState = "validating"
	BuildStateFreezing      BuildState = "freezing"
	BuildStateBuilt         BuildState = "built"
	BuildStateFailed        BuildState = "failed"
)

type CredentialKind string

const (
	CredentialKindSSH  CredentialKind = "ssh"
	CredentialKindPAT  CredentialKind = "pat"
	CredentialKindOIDC CredentialKind = "oidc"
)

type PublishOutcome string

const (
	PublishOutcomeSuccess PublishOutcome = "success"
	PublishOutcomeFailure PublishOutcome = "failure"
	PublishOutcomeTimeout PublishOutcome = "timeout"
)
