package game

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry holds the rule variants a server offers. The first variant
// registered is the default.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Game
	first    string
}

func NewRegistry() *Registry {
	return &Registry{variants: make(map[string]Game)}
}

// Register adds a variant. Panics on an empty or duplicate name, since
// variants are wired once at startup.
func (r *Registry) Register(g Game) {
	name := g.Info().Name
	if name == "" {
		panic("game: variant without a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.variants[name]; dup {
		panic(fmt.Sprintf("game: variant %q registered twice", name))
	}
	r.variants[name] = g
	if r.first == "" {
		r.first = name
	}
}

// Get returns a variant by name.
func (r *Registry) Get(name string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.variants[name]
	return g, ok
}

// Default returns the first registered variant.
func (r *Registry) Default() (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.variants[r.first]
	return g, ok
}

// List returns the variants sorted by name.
func (r *Registry) List() []GameInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]GameInfo, 0, len(r.variants))
	for _, g := range r.variants {
		infos = append(infos, g.Info())
	}
	slices.SortFunc(infos, func(a, b GameInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}
