package pumped

import metapkg "github.com/pumped-fn/pumped-go-sub001/pkg/meta"

// DataStore is a map-like bag of meta entries (spec.md §3.1 "DataStore").
// A FlowContext embeds one; user code and extensions read/write it
// through MetaKey's Find/Get/Set rather than touching entries directly.
type DataStore struct {
	entries []metapkg.Entry
}

// NewDataStore creates an empty store, optionally seeded with presets
// (as returned by MetaKey.Preset), e.g. for a pod's initialContext.
func NewDataStore(seed ...Meta) *DataStore {
	s := &DataStore{}
	for _, m := range seed {
		s.entries = append(s.entries, m.entry)
	}
	return s
}

// Copy returns a new store whose entries are a snapshot of d's at the
// moment of the call (spec.md §3.2 "Context monotonicity" — a child
// context copies the parent's entries at construction; later writes in
// either direction are not cross-visible).
func (d *DataStore) Copy() *DataStore {
	cp := &DataStore{entries: make([]metapkg.Entry, len(d.entries))}
	copy(cp.entries, d.entries)
	return cp
}

// MetaEntries satisfies metapkg.Source / MetaSource.
func (d *DataStore) MetaEntries() []metapkg.Entry { return d.entries }

func (d *DataStore) put(e metapkg.Entry) {
	for i, existing := range d.entries {
		if existing.KeyID == e.KeyID {
			d.entries[i] = e
			return
		}
	}
	d.entries = append(d.entries, e)
}

// Set is the C3 "accessor" write operation: validate value through k's
// schema and store it in d, replacing any prior entry for k.
func (k MetaKey[T]) Set(store *DataStore, value T) error {
	entry, err := k.key.Preset(value)
	if err != nil {
		return err
	}
	store.put(entry)
	return nil
}

// MustSet is Set, panicking on a schema violation.
func (k MetaKey[T]) MustSet(store *DataStore, value T) {
	if err := k.Set(store, value); err != nil {
		panic(err)
	}
}
