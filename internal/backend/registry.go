package backend

import "fmt"

// Registry resolves a FileInfo's storage name ("file", "s3", "webdav",
// etc.) to the Backend instance that implements it. The
// cache backend is deliberately not registered here: every engine
// component that needs it holds a direct *Cache handle, since it is
// addressed by file id rather than by storage name.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds an empty Registry; use Register to populate it.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register associates name with b, overwriting any prior registration.
func (r *Registry) Register(name string, b Backend) {
	r.backends[name] = b
}

// Get resolves name to its Backend, or an error if nothing is registered
// under that name.
func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend: unknown storage %q", name)
	}
	return b, nil
}

// Names returns the registered storage names, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
