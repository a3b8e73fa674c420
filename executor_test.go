package pumped

import "testing"

func TestProvideResolve(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	counter := Provide(func(rc *ResolveContext) (int, error) { return 42, nil })

	val, err := Resolve(scope, counter)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestDeriveSingle(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	counter := Provide(func(rc *ResolveContext) (int, error) { return 5, nil })
	doubled := Derive(counter, func(rc *ResolveContext, realized any) (int, error) {
		return realized.(int) * 2, nil
	})

	val, err := Resolve(scope, doubled)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if val != 10 {
		t.Errorf("expected 10, got %d", val)
	}
}

func TestFactoryRunsOnceAcrossConcurrentResolves(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	var calls int
	counter := Provide(func(rc *ResolveContext) (int, error) {
		calls++
		return calls, nil
	})

	done := make(chan int, 8)
	for i := 0; i < 8; i++ {
		go func() {
			v, err := Resolve(scope, counter)
			if err != nil {
				t.Error(err)
			}
			done <- v
		}()
	}
	for i := 0; i < 8; i++ {
		if v := <-done; v != 1 {
			t.Errorf("expected every concurrent resolve to see the single factory run's value 1, got %d", v)
		}
	}
	if calls != 1 {
		t.Errorf("expected factory to run exactly once, ran %d times", calls)
	}
}

func TestDeriveTupleOrderedRealization(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveContext) (int, error) { return 1, nil })
	b := Provide(func(rc *ResolveContext) (int, error) { return 2, nil })

	sum := DeriveTuple([]Dependency{a, b}, func(rc *ResolveContext, realized []any) (int, error) {
		return realized[0].(int) + realized[1].(int), nil
	})

	val, err := Resolve(scope, sum)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 3 {
		t.Errorf("expected 3, got %d", val)
	}
}

func TestDeriveRecordKeyedRealization(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	host := Provide(func(rc *ResolveContext) (string, error) { return "localhost", nil })
	port := Provide(func(rc *ResolveContext) (int, error) { return 8080, nil })

	addr := DeriveRecord(map[string]Dependency{"host": host, "port": port}, func(rc *ResolveContext, realized map[string]any) (string, error) {
		return realized["host"].(string), nil
	})

	val, err := Resolve(scope, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "localhost" {
		t.Errorf("expected localhost, got %s", val)
	}
}

func TestDependencyCycleDetected(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	b := Provide(func(rc *ResolveContext) (int, error) { return 1, nil })
	a := Derive(b, func(rc *ResolveContext, realized any) (int, error) {
		return realized.(int) + 1, nil
	})

	// Rewire b to depend on a, engineering a structural a->b->a cycle
	// that the chain-threaded cycle check must catch before either
	// factory runs.
	b.spec = DepSpec{Kind: DepSingle, Single: a}

	_, err := Resolve(scope, a)
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}

	var perr *Error
	if !asError(err, &perr) || perr.Code != CodeDependencyCycle {
		t.Errorf("expected CodeDependencyCycle, got %v", err)
	}
}

func asError(err error, target **Error) bool {
	pe, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = pe
	return true
}
