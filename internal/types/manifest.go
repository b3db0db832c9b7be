package types

// Manifest is the mutable, human-edited package description stored at the
// package root. It is never published directly; see FrozenConfig.
type Manifest struct {
	Name         string       `yaml:"name" toml:"name"`
	Namespace    string       `yaml:"namespace" toml:"namespace"`
	Version      string       `yaml:"version" toml:"version"`
	Description  string       `yaml:"description,omitempty" toml:"description,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	Build        BuildMeta    `yaml:"build,omitempty" toml:"build,omitempty"`
}

// BuildMeta carries free-form build metadata copied into the frozen config.
type BuildMeta struct {
	Metadata map[string]string `yaml:"metadata,omitempty" toml:"metadata,omitempty"`
}

// Dependency is a single dependency record. Source discriminates between a
// local path and a registry-qualified remote name.
type Dependency struct {
	ID          string     `yaml:"id" toml:"id"`
	Source      SourceKind `yaml:"source" toml:"source"`
	Path        string     `yaml:"path,omitempty" toml:"path,omitempty"`
	Registry    string     `yaml:"registry,omitempty" toml:"registry,omitempty"`
	Name        string     `yaml:"name,omitempty" toml:"name,omitempty"`
	Requirement string     `yaml:"requirement,omitempty" toml:"requirement,omitempty"`
}

func (d Dependency) IsLocal() bool {
	return d.Source == SourceKindLocal
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := m
	if m.Dependencies != nil {
		out.Dependencies = make([]Dependency, len(m.Dependencies))
		copy(out.Dependencies, m.Dependencies)
	}
	if m.Build.Metadata != nil {
		out.Build.Metadata = make(map[string]string, len(m.Build.Metadata))
		for k, v := range m.Build.Metadata {
			out.Build.Metadata[k] = v
		}
	}
	return out
}
