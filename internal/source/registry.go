package source

import (
	"fmt"
	"strings"
	"sync"
)

// ErrNoAdapter wraps resolution failures for identifiers no adapter claims.
type ErrNoAdapter struct {
	Identifier string
}

func (e *ErrNoAdapter) Error() string {
	return fmt.Sprintf("no registered source handles %q", e.Identifier)
}

// Registry holds the process-wide adapter table. It is populated once at
// startup via Register and read under a mutex afterwards; overlapping
// pattern claims are rejected at registration, never resolved by ordering
// at call time.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter to the table. It fails when the adapter's name
// is already taken or when one of its patterns contains (or is contained
// by) a pattern another adapter already claims.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("register: nil adapter")
	}
	if a.Name() == "" {
		return fmt.Errorf("register: adapter has empty name")
	}
	if len(a.Patterns()) == 0 {
		return fmt.Errorf("register %s: adapter declares no patterns", a.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.adapters {
		if existing.Name() == a.Name() {
			return fmt.Errorf("register %s: name already registered", a.Name())
		}
		if p, q, ok := overlap(existing.Patterns(), a.Patterns()); ok {
			return fmt.Errorf(
				"register %s: pattern %q overlaps %q claimed by %s",
				a.Name(), q, p, existing.Name(),
			)
		}
	}
	r.adapters = append(r.adapters, a)
	return nil
}

// Resolve returns the first registered adapter claiming the identifier.
// Registration rejects patterns that contain one another, which catches
// the common duplicate-source mistakes; patterns that overlap without
// containment are not detected, and for those registration order decides.
func (r *Registry) Resolve(identifier string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.CanHandle(identifier) {
			return a, nil
		}
	}
	return nil, &ErrNoAdapter{Identifier: identifier}
}

// Adapters returns a snapshot of the registered adapters in registration
// order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// overlap reports the first pair of patterns where one contains the other,
// meaning some identifier would match both. This is a containment check,
// not a full intersection test: patterns like "abc" and "bcd" can still
// both match one identifier.
func overlap(existing, candidate []string) (string, string, bool) {
	for _, p := range existing {
		for _, q := range candidate {
			if strings.Contains(p, q) || strings.Contains(q, p) {
				return p, q, true
			}
		}
	}
	return "", "", false
}

// MatchPatterns is the shared CanHandle implementation: a substring match
// against the declared patterns.
func MatchPatterns(identifier string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(identifier, p) {
			return true
		}
	}
	return false
}
