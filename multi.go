package pumped

import (
	"fmt"
	"sync"

	"github.com/pumped-fn/pumped-go-sub001/pkg/schema"
)

// Multi is a keyed family of executors, memoized by a canonical key
// derived from a user-supplied schema and optional key-transform
// (spec.md §4.9 / §9 "Multi-executor"). Each distinct canonical key
// gets its own main descriptor and cache cell, sharing one factory
// template.
type Multi[K comparable, T any] struct {
	mu       sync.Mutex
	schema   schema.Schema[K]
	canon    func(K) K
	factory  func(*ResolveContext, K) (T, error)
	byKey    map[K]*Executor[T]
}

// NewMulti builds a keyed family. keySchema validates every key passed
// to For; canon (if non-nil) normalizes validated keys before lookup,
// so distinct logical keys that normalize equal share one instance.
func NewMulti[K comparable, T any](keySchema schema.Schema[K], canon func(K) K, factory func(*ResolveContext, K) (T, error)) *Multi[K, T] {
	return &Multi[K, T]{
		schema:  keySchema,
		canon:   canon,
		factory: factory,
		byKey:   make(map[K]*Executor[T]),
	}
}

// For validates key, canonicalizes it, and returns the descriptor for
// that canonical key, creating it on first reference.
func (m *Multi[K, T]) For(key K) (*Executor[T], error) {
	validated, err := m.schema.Validate(key)
	if err != nil {
		return nil, newSchemaError(fmt.Sprintf("multi:%v", key), schemaIssues(err))
	}
	canonical := validated
	if m.canon != nil {
		canonical = m.canon(validated)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byKey[canonical]; ok {
		return e, nil
	}
	e := Provide(func(rc *ResolveContext) (T, error) {
		return m.factory(rc, canonical)
	}).Named(fmt.Sprintf("multi:%v", canonical))
	m.byKey[canonical] = e
	return e, nil
}

// Keys returns every canonical key a descriptor has been created for.
func (m *Multi[K, T]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]K, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	return keys
}
