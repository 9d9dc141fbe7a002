package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/humvec/pkg/provider/encoder"
)

// ErrProviderNotRegistered is returned by [Registry.CreateEncoder] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps encoder provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	encoders map[string]func(ProviderEntry) (encoder.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		encoders: make(map[string]func(ProviderEntry) (encoder.Provider, error)),
	}
}

// RegisterEncoder registers an encoder provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEncoder(name string, factory func(ProviderEntry) (encoder.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[name] = factory
}

// CreateEncoder instantiates an encoder provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateEncoder(entry ProviderEntry) (encoder.Provider, error) {
	r.mu.RLock()
	factory, ok := r.encoders[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: encoder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
