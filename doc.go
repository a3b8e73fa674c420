// Package pumped provides a graph-based dependency injection and
// reactive execution framework for Go.
//
// # Overview
//
// Pumped organizes code around four core concepts:
//
//  1. Executors: units of computation with explicit dependencies
//  2. Scopes: lifecycle managers that resolve and cache executor values
//  3. Pods: cheap, disposable per-request forks of a scope
//  4. Flows: short-span handler executions with hierarchical contexts
//
// # Basic Usage
//
// Create executors to define the dependency graph:
//
//	scope := pumped.NewScope()
//
//	config := pumped.Provide(func(rc *pumped.ResolveContext) (*Config, error) {
//	    return &Config{Port: 8080}, nil
//	})
//
//	server := pumped.Derive(config, func(rc *pumped.ResolveContext, realized any) (*Server, error) {
//	    cfg := realized.(*Config)
//	    return NewServer(cfg.Port), nil
//	})
//
//	srv, err := pumped.Resolve(scope, server)
//
// # Dependency Variants
//
// A dependency can be wrapped to change how it is supplied to a
// dependent, without changing how it is declared:
//
//	config.Lazy()     // accessor only, never forces resolution
//	config.Reactive() // resolves, and re-resolves the dependent on update
//	config.Static()   // resolves eagerly, hands over an accessor (no reactive edge)
//
//	doubled := pumped.Derive(counter.Reactive(), func(rc *pumped.ResolveContext, realized any) (int, error) {
//	    return realized.(int) * 2, nil
//	})
//
//	acc := pumped.AccessorFor(scope, counter)
//	acc.Set(5) // triggers re-resolution of doubled
//
// # Accessors
//
// Accessor[T] is the stable handle onto a descriptor's cached value,
// independent of how many times the underlying cell is replaced:
//
//	acc := pumped.AccessorFor(scope, counter)
//	val, err := acc.Get()        // resolve (or return cached)
//	val, ok := acc.Lookup()      // cached value without resolving
//	acc.Update(func(n int) int { return n + 1 })
//	unsubscribe := acc.Subscribe(func(updated Accessor[int]) {
//		n, _ := updated.Get()
//		fmt.Println("now", n)
//	})
//	acc.Release(true)            // soft release: cascade, don't error if uncached
//
// # Scopes and Pods
//
// A Scope owns the cache, the reactive subscriber graph, and the
// extension chain. A Pod is a cheap fork of a Scope — it imports a
// parent's already-resolved values lazily on first touch, and forbids
// reactive dependencies outright (a pod's cells are meant to be
// disposed together, not updated in place):
//
//	pod := scope.Pod(pumped.PresetValue(config, &Config{Port: 9090}))
//	defer pod.Dispose()
//
// # Flows
//
// Flows are schema-validated, short-span handler executions:
//
//	def := pumped.FlowDefinition[int, string]{
//	    Name:   "describe",
//	    Input:  schema.Custom[int](),
//	    Output: schema.Custom[string](),
//	}
//
//	handler := def.Handler(func(ctx *pumped.FlowContext, n int) (string, error) {
//	    return fmt.Sprintf("got %d", n), nil
//	})
//
//	out, err := pumped.Execute(scope, handler, def, 42)
//
// Subflows inherit their parent's context (copy-on-construct, so
// writes never leak back upward):
//
//	sub, err := pumped.Exec(ctx, subHandler, subDef, input)
//
// Journaled steps and fan-out are plain context operations:
//
//	val, err := pumped.Run(ctx, "charge-card", func() (Receipt, error) { return charge(amount) })
//	results, err := pumped.Parallel(ctx, tasks)
//	settled := pumped.ParallelSettled(ctx, tasks)
//
// # Tags and Metadata
//
// MetaKey[T] is a typed, schema-validated view over a map-like source —
// descriptors, scopes, and flow contexts (via their embedded DataStore)
// all satisfy MetaSource:
//
//	versionKey := pumped.NewMetaKey[string]("version", schema.Custom[string]())
//
//	exec := pumped.Provide(factory, versionKey.MustPreset("1.0.0"))
//	version, ok := versionKey.Find(exec)
//
//	versionKey.MustSet(ctx.DataStore, "1.0.1") // write into a flow context
//
// # Extensions
//
// Extensions wrap every resolve, flow execution, subflow, journaled
// step, and parallel fan-out through one Operation-typed hook. The
// last-registered extension ends up outermost:
//
//	type loggingExtension struct{ pumped.BaseExtension }
//
//	func (e *loggingExtension) Wrap(op pumped.Operation, next func() (any, error)) (any, error) {
//	    started := time.Now()
//	    result, err := next()
//	    slog.Info("op", "kind", op.Kind, "dur", time.Since(started), "err", err)
//	    return result, err
//	}
//
//	scope := pumped.NewScope(pumped.WithExtension(&loggingExtension{}))
//
// # Resource Cleanup
//
// Register cleanup from within a factory via the ResolveContext:
//
//	db := pumped.Provide(func(rc *pumped.ResolveContext) (*DB, error) {
//	    conn := openDB()
//	    rc.Cleanup(func() { conn.Close() })
//	    return conn, nil
//	})
//
// Cleanup runs, most-recently-registered first, when the cell is
// invalidated by an update, released, or the owning scope is disposed.
//
// # Testing with Presets
//
// Replace a descriptor's resolved value or its entire factory for a
// test scope, without touching the production graph:
//
//	testScope := pumped.NewScope(pumped.WithPreset(pumped.PresetValue(realDB, mockDB)))
//	testScope := pumped.NewScope(pumped.WithPreset(pumped.PresetWith(realDB, mockDBExecutor)))
//
// # Thread Safety
//
// Scope, Pod, and Accessor methods are safe for concurrent use.
// Factories run at most once per cache cell; concurrent resolvers of
// the same descriptor share one in-flight resolution rather than
// racing independent calls.
package pumped
