package secretstores

import (
	"fmt"
	"sort"

	"github.com/systmms/passup/pkg/store"
)

// Profile types understood by the registry.
const (
	TypeKDBX        = "kdbx"
	TypePWSafe      = "pwsafe"
	TypeChrome      = "chrome"
	TypeChromeGnome = "chrome-gnome"
	TypeChromeKDE   = "chrome-kde"
	TypePass        = "pass"
)

// Factory builds an engine for one source.
type Factory func(opts Options) store.Engine

// Registry maps profile types to engine factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in engines.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register(TypeKDBX, func(opts Options) store.Engine { return NewKDBXEngine(opts) })
	r.Register(TypePWSafe, func(opts Options) store.Engine { return NewPWSafeEngine(opts) })
	r.Register(TypeChrome, func(opts Options) store.Engine { return NewChromeEngine(opts, false) })
	// GNOME Keyring and KWallet both serve the Secret Service API.
	r.Register(TypeChromeGnome, func(opts Options) store.Engine { return NewChromeEngine(opts, true) })
	r.Register(TypeChromeKDE, func(opts Options) store.Engine { return NewChromeEngine(opts, true) })
	r.Register(TypePass, func(opts Options) store.Engine { return NewPassEngine(opts) })

	return r
}

// Register adds or replaces the factory for profileType.
func (r *Registry) Register(profileType string, f Factory) {
	r.factories[profileType] = f
}

// Create builds the engine for profileType.
func (r *Registry) Create(profileType string, opts Options) (store.Engine, error) {
	f, ok := r.factories[profileType]
	if !ok {
		return nil, fmt.Errorf("unknown profile type: %s", profileType)
	}
	return f(opts), nil
}

// SupportedTypes returns the registered profile types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a profile type is registered.
func (r *Registry) IsSupported(profileType string) bool {
	_, ok := r.factories[profileType]
	return ok
}

// NeedsFile reports whether sources of profileType must name a file.
func NeedsFile(profileType string) bool {
	return profileType != TypePass
}
