// Package audit turns raw dependency-audit tool output into normalized summaries.
package audit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Adapter converts one ecosystem's raw audit report into an AuditSummary.
type Adapter interface {
	// Ecosystem returns the ecosystem the adapter handles
	Ecosystem() models.Ecosystem

	// Detect reports whether the project at root belongs to this ecosystem
	Detect(root string) bool

	// Normalize parses a raw report. Unparsable input is an error, never an empty summary.
	Normalize(raw []byte) (*models.AuditSummary, error)
}

// Registry holds adapters in precedence order. The first adapter whose
// Detect matches wins.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with the npm adapter ahead of the pip adapter.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewNpmAdapter())
	r.Register(NewPipAdapter())
	return r
}

// Register appends an adapter with the lowest precedence so far. An adapter
// for an ecosystem that is already registered replaces the old one in place.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.adapters {
		if existing.Ecosystem() == adapter.Ecosystem() {
			r.adapters[i] = adapter
			return
		}
	}
	r.adapters = append(r.adapters, adapter)
}

// Detect returns the adapter for the project at root, or ErrEcosystemUnsupported.
func (r *Registry) Detect(root string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, adapter := range r.adapters {
		if adapter.Detect(root) {
			return adapter, nil
		}
	}
	return nil, ErrEcosystemUnsupported
}

// Lookup returns the adapter registered for an ecosystem
func (r *Registry) Lookup(ecosystem models.Ecosystem) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, adapter := range r.adapters {
		if adapter.Ecosystem() == ecosystem {
			return adapter, true
		}
	}
	return nil, false
}

// Ecosystems lists registered ecosystems in precedence order
func (r *Registry) Ecosystems() []models.Ecosystem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ecosystems := make([]models.Ecosystem, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		ecosystems = append(ecosystems, adapter.Ecosystem())
	}
	return ecosystems
}

// hasAnyFile reports whether at least one of the named regular files exists in root
func hasAnyFile(root string, names ...string) bool {
	for _, name := range names {
		info, err := os.Stat(filepath.Join(root, name))
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}
