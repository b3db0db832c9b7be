package types

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// FrozenConfig is the immutable snapshot of a Manifest taken at build time.
// Fields are unexported and every accessor returns copies, so a value can be
// shared across goroutines without synchronisation.
type FrozenConfig struct {
	name         string
	namespace    string
	version      string
	description  string
	dependencies []Dependency
	metadata     map[string]string
}

// NewFrozenConfig deep-copies m. It performs no validation; core.Freeze is
// the validating entry point.
func NewFrozenConfig(m Manifest) FrozenConfig {
	src := m.Clone()
	return FrozenConfig{
		name:         src.Name,
		namespace:    src.Namespace,
		version:      src.Version,
		description:  src.Description,
		dependencies: src.Dependencies,
		metadata:     src.Build.Metadata,
	}
}

func (c FrozenConfig) Namespace() (string, error) {
	return requireField("namespace", c.namespace)
}

func (c FrozenConfig) Version() (string, error) {
	return requireField("version", c.version)
}

// Description is optional in manifests and reports ErrConfigMissingField
// when it was never set.
func (c FrozenConfig) Description() (string, error) {
	return requireField("description", c.description)
}

func (c FrozenConfig) Name() string {
	return c.name
}

func (c FrozenConfig) Dependencies() []Dependency {
	return slices.Clone(c.dependencies)
}

func (c FrozenConfig) Metadata() map[string]string {
	return maps.Clone(c.metadata)
}

// Manifest returns the snapshot as a manifest value, e.g. for encoding.
func (c FrozenConfig) Manifest() Manifest {
	return Manifest{
		Name:         c.name,
		Namespace:    c.namespace,
		Version:      c.version,
		Description:  c.description,
		Dependencies: slices.Clone(c.dependencies),
		Build:        BuildMeta{Metadata: maps.Clone(c.metadata)},
	}
}

// Canonical encodes the snapshot as YAML. Map keys are emitted sorted, so
// equal configs always encode to identical bytes.
func (c FrozenConfig) Canonical() ([]byte, error) {
	return yaml.Marshal(c.Manifest())
}

// Digest is the hex sha256 of Canonical.
func (c FrozenConfig) Digest() (string, error) {
	data, err := c.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports structural equality. go-cmp picks this method up.
func (c FrozenConfig) Equal(other FrozenConfig) bool {
	return c.name == other.name &&
		c.namespace == other.namespace &&
		c.version == other.version &&
		c.description == other.description &&
		slices.Equal(c.dependencies, other.dependencies) &&
		maps.Equal(c.metadata, other.metadata)
}

func requireField(field string, value string) (string, error) {
	if value == "" {
		return "", &ConfigError{Kind: ErrConfigMissingField, Field: field}
	}
	return value, nil
}
