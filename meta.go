package pumped

import (
	metapkg "github.com/pumped-fn/pumped-go-sub001/pkg/meta"
	"github.com/pumped-fn/pumped-go-sub001/pkg/schema"
)

// MetaSource is anything a MetaKey can search: a descriptor (AnyExecutor),
// a *Scope, a *Pod, a *FlowContext, or a *DataStore. All of them expose
// MetaEntries() by embedding or forwarding to a metapkg.Source.
type MetaSource = metapkg.Source

// MetaKey identifies one kind of attachable attribute, validated through
// the same schema adapter (C1) as everything else in this module
// (spec.md §4.2). Build one with NewMetaKey at package-init time and
// reuse it across descriptors, scopes, pods, and flow contexts.
type MetaKey[T any] struct {
	key metapkg.Key[T]
}

// NewMetaKey creates a MetaKey backed by sch. An optional default value
// is returned by Find/Get when no entry for this key is attached.
func NewMetaKey[T any](name string, sch schema.Schema[T], def ...T) MetaKey[T] {
	return MetaKey[T]{key: metapkg.NewKey[T](name, sch, def...)}
}

// Name returns the key's debug name.
func (k MetaKey[T]) Name() string { return k.key.Name() }

// Preset validates value and returns a Meta ready to pass to Provide,
// Derive, DeriveTuple, DeriveRecord, or WithScopeTag.
func (k MetaKey[T]) Preset(value T) (Meta, error) {
	entry, err := k.key.Preset(value)
	if err != nil {
		return Meta{}, err
	}
	return Meta{entry: entry}, nil
}

// MustPreset is Preset, panicking on a schema violation — appropriate
// only for literal values known valid at construction time.
func (k MetaKey[T]) MustPreset(value T) Meta {
	m, err := k.Preset(value)
	if err != nil {
		panic(err)
	}
	return m
}

// Find looks up the first attached value for k in source, falling back
// to k's default when absent.
func (k MetaKey[T]) Find(source MetaSource) (T, bool) {
	return metapkg.Find(source, k.key)
}

// Get is Find with an error instead of an ok bool.
func (k MetaKey[T]) Get(source MetaSource) (T, error) {
	return metapkg.Get(source, k.key)
}

// Some returns every attached value for k in source, in attachment order.
func (k MetaKey[T]) Some(source MetaSource) []T {
	return metapkg.Some(source, k.key)
}

// Meta is one preset attribute, ready to attach at construction time to
// a descriptor (Provide/Derive...), a scope (WithScopeTag), or a flow
// context (WithInitialContext). A Pod takes no attributes of its own.
type Meta struct {
	entry metapkg.Entry
}

// staticSource lets plain []metapkg.Entry slices (collected ad hoc, e.g.
// a Pod's own tags) satisfy MetaSource without a dedicated type.
type staticSource []metapkg.Entry

func (s staticSource) MetaEntries() []metapkg.Entry { return s }
