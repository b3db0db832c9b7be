package ports

import (
	"context"

	"comlinepm/internal/types"
)

// RegistryConfigPort resolves registry names to targets.
type RegistryConfigPort interface {
	// Lookup returns (target, true, nil) on hit and (zero, false, nil) when
	// the name is not configured.
	Lookup(name string) (types.RegistryTarget, bool, error)
	Names() []string
}

// PublisherPort pushes one frozen package to one registry.
type PublisherPort interface {
	Push(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error)
}

// PublisherFactoryPort picks the publisher able to speak to a target.
type PublisherFactoryPort interface {
	PublisherFor(target types.RegistryTarget) (PublisherPort, error)
}
