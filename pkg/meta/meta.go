// Package meta provides the untyped storage primitives behind the
// symbol-keyed, schema-validated attribute registry (spec.md §4.2,
// component C2). It has no dependency on the root package so that
// descriptors, scopes, pods, flow contexts, and data stores can all
// implement Source without an import cycle.
package meta

import "sync/atomic"

// Entry is one stored attribute: the id of the Key that produced it and
// its raw (pre-validation) value.
type Entry struct {
	KeyID uint64
	Value any
}

// Source is anything an Entry can be attached to and later searched:
// a descriptor, a Scope, a Pod, a FlowContext, or a DataStore.
type Source interface {
	MetaEntries() []Entry
}

var keySeq uint64

// Validator is the subset of pkg/schema.Schema a Key needs: validate a
// raw value, returning either the coerced value or an error.
type Validator[T any] interface {
	Validate(value any) (T, error)
}

// Key identifies one kind of attribute. It is comparable by an internal
// sequence number, not by name, so two keys built with the same name
// remain distinct rather than silently colliding.
type Key[T any] struct {
	id   uint64
	name string
	sch  Validator[T]
	def  *T
}

// NewKey creates a Key backed by the given validator. An optional
// default is returned by Find when no entry for this key is present.
func NewKey[T any](name string, sch Validator[T], def ...T) Key[T] {
	k := Key[T]{
		id:   atomic.AddUint64(&keySeq, 1),
		name: name,
		sch:  sch,
	}
	if len(def) > 0 {
		d := def[0]
		k.def = &d
	}
	return k
}

// Name returns the key's debug name (not its identity).
func (k Key[T]) Name() string { return k.name }

// Preset validates value and returns the Entry to attach at
// construction time (spec.md §4.2 "preset(value) -> (symbol, V)").
func (k Key[T]) Preset(value T) (Entry, error) {
	v, err := k.sch.Validate(value)
	if err != nil {
		return Entry{}, err
	}
	return Entry{KeyID: k.id, Value: v}, nil
}

// Find returns the first entry for k in src, validated through k's
// schema, falling back to k's default (if any) when absent.
func Find[T any](src Source, k Key[T]) (T, bool) {
	for _, e := range src.MetaEntries() {
		if e.KeyID != k.id {
			continue
		}
		if v, err := k.sch.Validate(e.Value); err == nil {
			return v, true
		}
	}
	if k.def != nil {
		return *k.def, true
	}
	var zero T
	return zero, false
}

// Get is Find with a missing-key error instead of an ok bool.
func Get[T any](src Source, k Key[T]) (T, error) {
	v, ok := Find(src, k)
	if !ok {
		var zero T
		return zero, &NotFoundError{Key: k.name}
	}
	return v, nil
}

// Some returns every entry for k in src, in attachment order, each
// independently validated through k's schema.
func Some[T any](src Source, k Key[T]) []T {
	var out []T
	for _, e := range src.MetaEntries() {
		if e.KeyID != k.id {
			continue
		}
		if v, err := k.sch.Validate(e.Value); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// NotFoundError is returned by Get when no entry and no default exist.
type NotFoundError struct{ Key string }

func (e *NotFoundError) Error() string { return "meta: no entry for key " + e.Key }
