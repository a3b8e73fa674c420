// Package pumped implements a dependency-graph resolution runtime with
// reactive update propagation, scoped resource lifecycles, and a
// "flow" execution subsystem layered on top of it.
//
// See doc.go for a tour of the API.
package pumped

import (
	"sync/atomic"

	"github.com/google/uuid"
	metapkg "github.com/pumped-fn/pumped-go-sub001/pkg/meta"
)

var nextExecutorSeq uint64

// Variant marks how a dependent wants to realize a reference to a main
// descriptor during resolution (spec.md §3.1/§4.5.2).
type Variant int

const (
	// VariantMain resolves the dependency and passes its value.
	VariantMain Variant = iota
	// VariantLazy passes the dependency's accessor without resolving it.
	VariantLazy
	// VariantReactive resolves the dependency, passes its value, and
	// registers the dependent to be re-run when the dependency updates.
	VariantReactive
	// VariantStatic resolves the dependency but passes its accessor,
	// not its value, and registers no reactive edge.
	VariantStatic
)

func (v Variant) String() string {
	switch v {
	case VariantLazy:
		return "lazy"
	case VariantReactive:
		return "reactive"
	case VariantStatic:
		return "static"
	default:
		return "main"
	}
}

// Dependency is a reference to a main descriptor tagged with the
// variant under which a dependent wants to realize it. An *Executor[T]
// itself satisfies Dependency with VariantMain.
type Dependency interface {
	mainExecutor() AnyExecutor
	variant() Variant
}

type dependencyRef struct {
	exec AnyExecutor
	kind Variant
}

func (d dependencyRef) mainExecutor() AnyExecutor { return d.exec }
func (d dependencyRef) variant() Variant          { return d.kind }

// AnyExecutor is the type-erased identity of a main descriptor. Two
// Dependency values referencing the same main descriptor — regardless
// of variant — compare equal via mainExecutor(), which is what the
// cache and reactive graph key on (spec.md §3.2 "variant transparency").
type AnyExecutor interface {
	Dependency
	seq() uint64
	debugName() string
	dependencySpec() DepSpec
	MetaEntries() []metapkg.Entry
	runFactory(rc *ResolveContext, realized any) (any, error)
	// DebugName is debugName's exported mirror, for extensions and other
	// out-of-package observers that only see AnyExecutor.
	DebugName() string
}

// DepKind discriminates the shape a dependency spec preserves through
// resolution (spec.md §3.1 "Dependency spec").
type DepKind int

const (
	DepNone DepKind = iota
	DepSingle
	DepTuple
	DepRecord
)

// DepSpec is the (possibly empty) set of dependencies a descriptor's
// factory is realized against. Its shape — none/single/tuple/record —
// is preserved verbatim into the realized value passed to the factory.
type DepSpec struct {
	Kind   DepKind
	Single Dependency
	Tuple  []Dependency
	Record map[string]Dependency
}

// Executor is an immutable producer descriptor: a factory, a
// dependency spec, attached metas, and (implicitly) the main variant.
// It is comparable by pointer identity, which is exactly the identity
// the cache, presets, and reactive graph use.
type Executor[T any] struct {
	id       uuid.UUID
	sequence uint64
	name     string
	spec     DepSpec
	factory  func(*ResolveContext, any) (T, error)
	metaList []metapkg.Entry
}

var _ AnyExecutor = (*Executor[any])(nil)

func newExecutor[T any](spec DepSpec, factory func(*ResolveContext, any) (T, error), metas []Meta) *Executor[T] {
	e := &Executor[T]{
		id:       uuid.New(),
		sequence: atomic.AddUint64(&nextExecutorSeq, 1),
		spec:     spec,
		factory:  factory,
	}
	for _, m := range metas {
		e.metaList = append(e.metaList, m.entry)
	}
	return e
}

func (e *Executor[T]) seq() uint64                       { return e.sequence }
func (e *Executor[T]) mainExecutor() AnyExecutor         { return e }
func (e *Executor[T]) variant() Variant                  { return VariantMain }
func (e *Executor[T]) dependencySpec() DepSpec           { return e.spec }
func (e *Executor[T]) MetaEntries() []metapkg.Entry      { return e.metaList }

func (e *Executor[T]) debugName() string {
	if e.name != "" {
		return e.name
	}
	return "executor:" + e.id.String()[:8]
}

// DebugName is debugName's exported mirror.
func (e *Executor[T]) DebugName() string { return e.debugName() }

// Named sets the descriptor's debug id. It returns the same descriptor
// for chaining at construction time.
func (e *Executor[T]) Named(name string) *Executor[T] {
	e.name = name
	return e
}

func (e *Executor[T]) runFactory(rc *ResolveContext, realized any) (any, error) {
	return e.factory(rc, realized)
}

// Lazy returns a dependency variant that, when referenced, yields this
// descriptor's accessor without resolving it (spec.md §4.5.2).
func (e *Executor[T]) Lazy() Dependency { return dependencyRef{exec: e, kind: VariantLazy} }

// Reactive returns a dependency variant that resolves this descriptor
// and subscribes the dependent to its future updates.
func (e *Executor[T]) Reactive() Dependency { return dependencyRef{exec: e, kind: VariantReactive} }

// Static returns a dependency variant that resolves this descriptor
// but hands the dependent its accessor rather than its value, without
// registering a reactive edge.
func (e *Executor[T]) Static() Dependency { return dependencyRef{exec: e, kind: VariantStatic} }

// Provide creates a descriptor with no dependencies.
func Provide[T any](factory func(*ResolveContext) (T, error), metas ...Meta) *Executor[T] {
	return newExecutor[T](DepSpec{Kind: DepNone}, func(rc *ResolveContext, _ any) (T, error) {
		return factory(rc)
	}, metas)
}

// Derive creates a descriptor with a single dependency. The realized
// value passed to factory is the dependency's value (VariantMain/Reactive)
// or a type-erased accessor for it (VariantLazy/Static), not an
// Accessor[T]. Use DeriveTuple or DeriveRecord
// for more than one dependency.
func Derive[T any](dep Dependency, factory func(*ResolveContext, any) (T, error), metas ...Meta) *Executor[T] {
	return newExecutor[T](DepSpec{Kind: DepSingle, Single: dep}, factory, metas)
}

// DeriveTuple creates a descriptor whose dependency spec is an ordered
// tuple; realized is a []any matching deps's order (spec.md §3.1(c)).
func DeriveTuple[T any](deps []Dependency, factory func(*ResolveContext, []any) (T, error), metas ...Meta) *Executor[T] {
	return newExecutor[T](DepSpec{Kind: DepTuple, Tuple: deps}, func(rc *ResolveContext, realized any) (T, error) {
		return factory(rc, realized.([]any))
	}, metas)
}

// DeriveRecord creates a descriptor whose dependency spec is a
// string-keyed record; realized is a map[string]any (spec.md §3.1(d)).
func DeriveRecord[T any](deps map[string]Dependency, factory func(*ResolveContext, map[string]any) (T, error), metas ...Meta) *Executor[T] {
	return newExecutor[T](DepSpec{Kind: DepRecord, Record: deps}, func(rc *ResolveContext, realized any) (T, error) {
		return factory(rc, realized.(map[string]any))
	}, metas)
}
