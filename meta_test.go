package pumped

import (
	"testing"

	"github.com/pumped-fn/pumped-go-sub001/pkg/schema"
)

func TestMetaKeyFindReturnsDefaultWhenAbsent(t *testing.T) {
	key := NewMetaKey[string]("greeting", schema.Custom[string](), "hello")

	store := NewDataStore()
	val, ok := key.Find(store)
	if !ok {
		t.Fatal("expected a default to be found")
	}
	if val != "hello" {
		t.Errorf("expected default 'hello', got %q", val)
	}
}

func TestMetaKeySetAndFindRoundTrip(t *testing.T) {
	key := NewMetaKey[int]("count", schema.Custom[int]())
	store := NewDataStore()

	if err := key.Set(store, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	val, ok := key.Find(store)
	if !ok {
		t.Fatal("expected an attached value")
	}
	if val != 7 {
		t.Errorf("expected 7, got %d", val)
	}
}

func TestMetaKeySetReplacesPriorEntry(t *testing.T) {
	key := NewMetaKey[int]("version", schema.Custom[int]())
	store := NewDataStore()

	key.MustSet(store, 1)
	key.MustSet(store, 2)

	if len(store.MetaEntries()) != 1 {
		t.Fatalf("expected a single entry after replacement, got %d", len(store.MetaEntries()))
	}

	val, _ := key.Find(store)
	if val != 2 {
		t.Errorf("expected the second Set to win, got %d", val)
	}
}

func TestMetaKeyGetReturnsError(t *testing.T) {
	key := NewMetaKey[int]("unset", schema.Custom[int]())
	store := NewDataStore()

	_, err := key.Get(store)
	if err == nil {
		t.Fatal("expected an error when no entry and no default is present")
	}
}

func TestMetaKeySomeReturnsAllAttachedValues(t *testing.T) {
	tagKey := NewMetaKey[string]("tag", schema.Custom[string]())

	presetA, err := tagKey.Preset("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := NewDataStore(presetA)

	values := tagKey.Some(store)
	if len(values) != 1 || values[0] != "a" {
		t.Errorf("expected [a], got %v", values)
	}
}

func TestDataStoreCopyIsolatesSubsequentWrites(t *testing.T) {
	key := NewMetaKey[int]("depth", schema.Custom[int]())
	parent := NewDataStore()
	key.MustSet(parent, 1)

	child := parent.Copy()
	key.MustSet(child, 2)

	parentVal, _ := key.Find(parent)
	childVal, _ := key.Find(child)
	if parentVal != 1 {
		t.Errorf("expected parent to remain 1, got %d", parentVal)
	}
	if childVal != 2 {
		t.Errorf("expected child to be 2, got %d", childVal)
	}
}

func TestMetaKeyPresetValidatesAtConstruction(t *testing.T) {
	type bounded struct {
		N int `validate:"min=0,max=10"`
	}
	key := NewMetaKey[bounded]("bounded", schema.Struct[bounded]())

	if _, err := key.Preset(bounded{N: 20}); err == nil {
		t.Fatal("expected validation to reject N=20")
	}
	if _, err := key.Preset(bounded{N: 5}); err != nil {
		t.Errorf("expected N=5 to validate, got %v", err)
	}
}
