package types

import "time"

// BuildContext is the result of a build: either Unbuilt or Built. Only Built
// carries a FrozenConfig, so an unbuilt context cannot be published by
// accident.
type BuildContext interface {
	State() BuildState
	Transitions() []BuildTransition
	buildContext()
}

// BuildTransition records one step of the build state machine.
type BuildTransition struct {
	From BuildState
	To   BuildState
	At   time.Time
}

// Artifact is a file produced by the build.
type Artifact struct {
	Path   string `yaml:"path"`
	Digest string `yaml:"digest"`
	Size   int64  `yaml:"size"`
}

type Unbuilt struct {
	PackagePath string
	Final       BuildState
	Log         []BuildTransition
}

func (u Unbuilt) State() BuildState {
	if u.Final == "" {
		return BuildStateUninitialized
	}
	return u.Final
}

func (u Unbuilt) Transitions() []BuildTransition { return u.Log }

func (Unbuilt) buildContext() {}

type Built struct {
	PackagePath string
	Config      FrozenConfig
	Artifacts   []Artifact
	Log         []BuildTransition
}

func (Built) State() BuildState { return BuildStateBuilt }

func (b Built) Transitions() []BuildTransition { return b.Log }

func (Built) buildContext() {}

// PrimaryArtifact returns the package archive, the first artifact produced.
func (b Built) PrimaryArtifact() (Artifact, bool) {
	if len(b.Artifacts) == 0 {
		return Artifact{}, false
	}
	return b.Artifacts[0], true
}
