package crawler

import (
	"strings"
	"sync"
)

// Factory builds a SiteCrawler bound to a fresh browser session. Everything
// else a site crawler needs (gate, archiver, recorder, ...) is closed over at
// registration time.
type Factory func(browser Browser) SiteCrawler

// Registry maps target-site URL patterns to crawler factories. New sites
// register a variant here; nothing subclasses anything.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a URL substring pattern to a factory. Later registrations
// for the same pattern replace earlier ones.
func (r *Registry) Register(pattern string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(pattern)] = factory
}

// Lookup finds the factory whose pattern matches the target URL.
func (r *Registry) Lookup(targetURL string) (Factory, bool) {
	needle := strings.ToLower(strings.TrimSpace(targetURL))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pattern, factory := range r.factories {
		if strings.Contains(needle, pattern) {
			return factory, true
		}
	}
	return nil, false
}

// Patterns returns the registered patterns, primarily for diagnostics.
func (r *Registry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for pattern := range r.factories {
		out = append(out, pattern)
	}
	return out
}
