package cache

import (
	"sort"
	"sync"
)

// DefaultCacheName is the cache handed out when no name is given.
const DefaultCacheName = "default"

// Registry hands out named, lazily created Cache instances so
// unrelated feature areas can keep logically separate caches without
// coordinating creation. It is an explicit object with a defined
// lifecycle: construct one at process start and pass it to every
// collaborator that needs a cache.
type Registry struct {
	cfg Config

	mu     sync.Mutex
	caches map[string]*Cache
}

// NewRegistry creates a registry whose caches are all built with the
// given configuration.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		caches: make(map[string]*Cache),
	}
}

// Get returns the cache for name, creating it on first use. An empty
// name resolves to DefaultCacheName. Caches under different names are
// fully independent.
func (r *Registry) Get(name string) *Cache {
	if name == "" {
		name = DefaultCacheName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[name]
	if !ok {
		c = New(name, r.cfg)
		r.caches[name] = c
	}
	return c
}

// Names lists the caches created so far, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
