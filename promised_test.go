package pumped

import (
	"errors"
	"testing"
)

func TestPromisedUnwrapAndIsOk(t *testing.T) {
	ok := ResolvedPromise(42)
	v, err := ok.Unwrap()
	if err != nil || v != 42 {
		t.Errorf("expected (42, nil), got (%d, %v)", v, err)
	}
	if !ok.IsOk() {
		t.Error("expected resolved promise to report IsOk")
	}

	boom := errors.New("boom")
	failed := RejectedPromise[int](boom)
	if failed.IsOk() {
		t.Error("expected rejected promise to report !IsOk")
	}
	_, err = failed.Unwrap()
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestMapPromisedTransformsOnlyWhenOk(t *testing.T) {
	ok := ResolvedPromise(2)
	doubled := MapPromised(ok, func(v int) int { return v * 2 })
	v, err := doubled.Unwrap()
	if err != nil || v != 4 {
		t.Errorf("expected (4, nil), got (%d, %v)", v, err)
	}

	boom := errors.New("boom")
	failed := RejectedPromise[int](boom)
	mapped := MapPromised(failed, func(v int) int { return v * 2 })
	if mapped.IsOk() {
		t.Error("expected MapPromised to pass through a rejected promise unchanged")
	}
}

func TestSwitchPromisedChainsDependentPromise(t *testing.T) {
	ok := ResolvedPromise(2)
	result := SwitchPromised(ok, func(v int) Promised[string] {
		if v > 0 {
			return ResolvedPromise("positive")
		}
		return RejectedPromise[string](errors.New("non-positive"))
	})
	v, err := result.Unwrap()
	if err != nil || v != "positive" {
		t.Errorf("expected ('positive', nil), got (%q, %v)", v, err)
	}

	boom := errors.New("boom")
	failed := RejectedPromise[int](boom)
	result2 := SwitchPromised(failed, func(v int) Promised[string] {
		t.Fatal("expected fn not to be called on a rejected promise")
		return Promised[string]{}
	})
	if result2.IsOk() {
		t.Error("expected the rejection to short-circuit")
	}
}

func TestPromisedMapErrorOnlyAppliesOnRejection(t *testing.T) {
	boom := errors.New("boom")
	failed := RejectedPromise[int](boom)
	wrapped := failed.MapError(func(err error) error { return errors.New("wrapped: " + err.Error()) })
	_, err := wrapped.Unwrap()
	if err.Error() != "wrapped: boom" {
		t.Errorf("expected wrapped error, got %v", err)
	}

	ok := ResolvedPromise(1)
	unchanged := ok.MapError(func(err error) error { return errors.New("should not run") })
	if !unchanged.IsOk() {
		t.Error("expected MapError to leave a resolved promise untouched")
	}
}

func TestPartitionSplitsValuesAndErrors(t *testing.T) {
	boom := errors.New("boom")
	ps := []Promised[int]{
		ResolvedPromise(1),
		RejectedPromise[int](boom),
		ResolvedPromise(3),
	}
	values, errs := Partition(ps)
	if len(values) != 2 || values[0] != 1 || values[1] != 3 {
		t.Errorf("expected values [1 3], got %v", values)
	}
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("expected a single boom error, got %v", errs)
	}
}

func TestPromisedSettledRoundTrip(t *testing.T) {
	ok := ResolvedPromise("x")
	settled := ToSettled(ok)
	if settled.Err != nil || settled.Value != "x" {
		t.Errorf("expected settled {x nil}, got %+v", settled)
	}

	roundTripped := FromSettled(settled)
	v, err := roundTripped.Unwrap()
	if err != nil || v != "x" {
		t.Errorf("expected ('x', nil) after round trip, got (%q, %v)", v, err)
	}

	boom := errors.New("boom")
	failedSettled := Settled[int]{Err: boom}
	backToPromised := FromSettled(failedSettled)
	if backToPromised.IsOk() {
		t.Error("expected a failed Settled to round-trip into a rejected Promised")
	}
}
