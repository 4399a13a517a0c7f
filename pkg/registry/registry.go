// Package registry maps provider names to constructors.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/providers/ookla"
	"github.com/bilal/netvelocimeter/pkg/providers/static"
)

// Entry is a registered provider.
type Entry struct {
	Name        string
	Description string
	New         provider.Constructor
	// Target names the aliased entry; empty for a provider's own name.
	Target string
}

// Provider returns the name the provider is registered under, following an
// alias to its target.
func (e Entry) Provider() string {
	if e.Target != "" {
		return e.Target
	}
	return e.Name
}

// Registry is a name → constructor table. Names are case-sensitive. The
// zero value is empty and ready to use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// NewDefault returns a registry holding the built-in providers.
func NewDefault() *Registry {
	r := New()
	r.Register(ookla.Name, "Speedtest by Ookla CLI", ookla.New)
	r.RegisterAlias(ookla.Alias, ookla.Name)
	r.Register(static.Name, "Deterministic provider for testing", static.New)
	return r
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name, description string, ctor provider.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]Entry)
	}
	r.entries[name] = Entry{Name: name, Description: description, New: ctor}
}

// RegisterAlias makes alias build the provider registered as target. The
// alias reports target as its Provider.
func (r *Registry) RegisterAlias(alias, target string) error {
	e, err := r.Lookup(target)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[alias] = Entry{
		Name:        alias,
		Description: "Alias for " + e.Provider(),
		New:         e.New,
		Target:      e.Provider(),
	}
	return nil
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.New == nil {
		return Entry{}, nverr.Errorf("registry.lookup", nverr.ErrProviderNotFound, "unknown provider %q", name)
	}
	return e, nil
}

// Create looks up name and builds the provider.
func (r *Registry) Create(ctx context.Context, name string, opts provider.Options) (provider.Provider, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.New(ctx, opts)
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	entries := r.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
