package pumped

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	metapkg "github.com/pumped-fn/pumped-go-sub001/pkg/meta"
)

// presetEntry is a registered (descriptor, replacement) pair (spec.md
// §3.1 "Preset"). A value preset short-circuits the factory entirely;
// a descriptor preset substitutes the matched descriptor's factory and
// dependency spec with the replacement's for the scope's lifetime.
type presetEntry struct {
	isValue     bool
	value       any
	replacement AnyExecutor
}

// Preset is an opaque (descriptor, replacement) pair built by PresetValue
// or PresetWith, passed to NewScope/Pod at construction time.
type Preset struct {
	target AnyExecutor
	entry  presetEntry
}

// PresetValue registers that resolving target should short-circuit to
// value, without ever invoking target's factory.
func PresetValue[T any](target *Executor[T], value T) Preset {
	return Preset{target: target, entry: presetEntry{isValue: true, value: value}}
}

// PresetWith registers that resolving target should use replacement's
// factory and dependency spec instead of target's own.
func PresetWith[T any](target, replacement *Executor[T]) Preset {
	return Preset{target: target, entry: presetEntry{replacement: replacement}}
}

// Scope is an isolated resolution context owning the cache, cleanups,
// extensions, and reactive subscriber graph (spec.md §4.5, glossary
// "Scope"). A Pod is a Scope forked from a parent with cache import
// and no-reactive overrides turned on.
type Scope struct {
	mu    sync.Mutex
	id    uuid.UUID
	cells map[AnyExecutor]*cacheCell
	graph *reactiveGraph

	presets    map[AnyExecutor]presetEntry
	extensions []Extension
	pods       map[*Pod]struct{}

	tags *DataStore

	onErrorCbs   map[uint64]func(error)
	onReleaseCbs map[uint64]func(AnyExecutor)
	cbSeq        uint64

	disposing bool
	disposed  bool

	// pod-only fields; nil/false on a root scope.
	isPod  bool
	parent *Scope

	pool *PoolManager
}

// ScopeOption configures a Scope at construction time.
type ScopeOption func(*Scope)

// WithExtension registers ext at construction and runs its Init hook.
func WithExtension(ext Extension) ScopeOption {
	return func(s *Scope) { s.extensions = append(s.extensions, ext) }
}

// WithPreset registers p for the scope's lifetime.
func WithPreset(p Preset) ScopeOption {
	return func(s *Scope) { s.presets[p.target.mainExecutor()] = p.entry }
}

// WithScopeTag attaches a preset meta attribute to the scope itself,
// retrievable via a MetaKey against s (a *Scope satisfies MetaSource).
func WithScopeTag(m Meta) ScopeOption {
	return func(s *Scope) { s.tags.entries = append(s.tags.entries, m.entry) }
}

// NewScope creates a root scope, applies opts, and runs every
// registered extension's Init in registration order.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		id:      uuid.New(),
		cells:   make(map[AnyExecutor]*cacheCell),
		graph:   newReactiveGraph(),
		presets: make(map[AnyExecutor]presetEntry),
		pods:    make(map[*Pod]struct{}),
		tags:    &DataStore{},
		pool:    newPoolManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, ext := range s.extensions {
		_ = ext.Init(s)
	}
	return s
}

// MetaEntries lets a *Scope act as a MetaSource for scope-level tags.
func (s *Scope) MetaEntries() []metapkg.Entry { return s.tags.MetaEntries() }

// ID returns the scope's debug identity.
func (s *Scope) ID() uuid.UUID { return s.id }

// ExportDependencyGraph returns a snapshot of the reactive subscriber
// graph (dependency -> its reactive dependents), for debugging and
// visualization extensions.
func (s *Scope) ExportDependencyGraph() map[AnyExecutor][]AnyExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[AnyExecutor][]AnyExecutor, len(s.graph.downstream))
	for dep, dependents := range s.graph.downstream {
		out[dep] = append([]AnyExecutor(nil), dependents...)
	}
	return out
}

func (s *Scope) addCleanup(exec AnyExecutor, fn func()) {
	main := exec.mainExecutor()
	s.mu.Lock()
	cell, ok := s.cells[main]
	s.mu.Unlock()
	if ok {
		cell.addCleanup(fn)
	}
}

// resolveAny is the untyped entry point used by Resolve[T], ResolveContext,
// and dependency realization.
func (s *Scope) resolveAny(exec AnyExecutor, force bool) (any, error) {
	return s.resolveChain(exec, force, nil)
}

func (s *Scope) resolveChain(exec AnyExecutor, force bool, chain []AnyExecutor) (any, error) {
	main := exec.mainExecutor()
	for _, c := range chain {
		if c == main {
			full := append(append([]AnyExecutor(nil), chain...), main)
			return nil, newDependencyResolutionError(CodeDependencyCycle, main.debugName(), chainNames(full), nil)
		}
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, newSystemError(CodeSystemDisposed, main.debugName(), nil)
	}
	existingCell, existed := s.cells[main]
	if existed && !force {
		s.mu.Unlock()
		return existingCell.snapshot()
	}

	// Pod inheritance: on first touch of a descriptor the parent has
	// cached, import its settled cell verbatim (spec.md §4.6, §3.2
	// "Pod inheritance semantics").
	if s.isPod && !existed && s.parent != nil {
		s.parent.mu.Lock()
		parentCell, parentHas := s.parent.cells[main]
		s.parent.mu.Unlock()
		if parentHas {
			if value, err, ok := parentCell.peek(); ok {
				imported := alreadyDone(value, err)
				s.cells[main] = imported
				s.mu.Unlock()
				return value, err
			}
		}
	}

	preset, hasPreset := s.presets[main]
	exts := s.pool.AcquireExtensionSlice()
	exts = append(exts, s.extensions...)
	defer s.pool.ReleaseExtensionSlice(exts)
	newCell := newPendingCell()
	s.cells[main] = newCell
	s.mu.Unlock()

	if existed && force {
		existingCell.drainCleanups(func(r any) { s.notifyCleanupError(main, r) })
	}

	value, err := s.runResolution(main, preset, hasPreset, exts, chain, newCell)
	if err != nil {
		newCell.settleRejected(err)
		s.fireError(err)
		return nil, err
	}
	newCell.settleResolved(value)
	return value, nil
}

func (s *Scope) runResolution(main AnyExecutor, preset presetEntry, hasPreset bool, exts []Extension, chain []AnyExecutor, cell *cacheCell) (any, error) {
	op := Operation{Kind: OpResolve, Executor: main, Scope: s, ResolveSubkind: "resolve"}
	return s.wrapChain(exts, op, func() (any, error) {
		if hasPreset && preset.isValue {
			return preset.value, nil
		}

		effective := main
		if hasPreset && preset.replacement != nil {
			effective = preset.replacement
		}

		realized, err := s.realizeSpec(effective.dependencySpec(), main, append(chain, main))
		if err != nil {
			return nil, err
		}

		rc := s.pool.AcquireResolveContext(s, main)
		defer s.pool.ReleaseResolveContext(rc)
		value, ferr := s.invokeFactory(effective, rc, realized)
		if ferr != nil {
			return nil, ferr
		}
		return value, nil
	})
}

func (s *Scope) invokeFactory(exec AnyExecutor, rc *ResolveContext, realized any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newFactoryPanicError(exec.debugName(), nil, r)
		}
	}()
	result, err = exec.runFactory(rc, realized)
	if err != nil {
		err = newFactoryExecutionError(exec.debugName(), nil, err)
	}
	return result, err
}

func (s *Scope) realizeSpec(spec DepSpec, dependent AnyExecutor, chain []AnyExecutor) (any, error) {
	switch spec.Kind {
	case DepNone:
		return nil, nil
	case DepSingle:
		return s.realizeDep(spec.Single, dependent, chain)
	case DepTuple:
		out := make([]any, len(spec.Tuple))
		for i, d := range spec.Tuple {
			v, err := s.realizeDep(d, dependent, chain)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case DepRecord:
		out := make(map[string]any, len(spec.Record))
		for k, d := range spec.Record {
			v, err := s.realizeDep(d, dependent, chain)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (s *Scope) realizeDep(dep Dependency, dependent AnyExecutor, chain []AnyExecutor) (any, error) {
	depMain := dep.mainExecutor()
	switch dep.variant() {
	case VariantLazy:
		return s.untypedAccessor(depMain), nil
	case VariantReactive:
		if s.isPod {
			return nil, newDependencyResolutionError(CodeDependencyReactiveInPod, dependent.debugName(), chainNames(chain), nil)
		}
		s.mu.Lock()
		s.graph.addEdge(depMain, dependent)
		s.mu.Unlock()
		return s.resolveChain(depMain, false, chain)
	case VariantStatic:
		if _, err := s.resolveChain(depMain, false, chain); err != nil {
			return nil, err
		}
		return s.untypedAccessor(depMain), nil
	default:
		return s.resolveChain(depMain, false, chain)
	}
}

// update is the untyped implementation behind Accessor[T].Update/Set
// (spec.md §4.5.3).
func (s *Scope) update(exec AnyExecutor, compute func(any) any) error {
	main := exec.mainExecutor()
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return newSystemError(CodeSystemDisposed, main.debugName(), nil)
	}
	cell, ok := s.cells[main]
	if !ok {
		cell = newPendingCell()
		s.cells[main] = cell
	}
	exts := append([]Extension(nil), s.extensions...)
	s.mu.Unlock()

	op := Operation{Kind: OpResolve, Executor: main, Scope: s, ResolveSubkind: "update"}
	_, err := s.wrapChain(exts, op, func() (any, error) {
		cell.drainCleanups(func(r any) { s.notifyCleanupError(main, r) })
		cur, _, _ := cell.peek()
		newVal := compute(cur)
		cell.mu.Lock()
		if cell.state == cellPending {
			cell.mu.Unlock()
			cell.settleResolved(newVal)
		} else {
			cell.value = newVal
			cell.state = cellResolved
			cell.err = nil
			cell.mu.Unlock()
		}
		s.propagate(main, newVal)
		return newVal, nil
	})
	return err
}

type propagationJob struct {
	exec AnyExecutor
	val  any
}

// propagate implements §4.5.3's breadth-respecting update cascade: a
// plain queue, not recursion, so each layer fully completes before the
// next is visited.
func (s *Scope) propagate(main AnyExecutor, newVal any) {
	queue := []propagationJob{{main, newVal}}
	visited := map[AnyExecutor]bool{main: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		s.mu.Lock()
		dependents := append([]AnyExecutor(nil), s.graph.directDependents(cur.exec)...)
		var callbacks []func(*untypedAccessor)
		if cell, ok := s.cells[cur.exec]; ok {
			callbacks = cell.snapshotCallbacks()
		}
		s.mu.Unlock()

		acc := s.untypedAccessor(cur.exec)
		for _, cb := range callbacks {
			invokeIsolated(cb, acc)
		}

		for _, dep := range dependents {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			v, err := s.resolveChain(dep, true, nil)
			if err == nil {
				queue = append(queue, propagationJob{dep, v})
			}
		}
	}
}

func invokeIsolated(cb func(*untypedAccessor), acc *untypedAccessor) {
	defer func() { _ = recover() }()
	cb(acc)
}

// release implements spec.md §4.5.4.
func (s *Scope) release(exec AnyExecutor, soft bool) error {
	main := exec.mainExecutor()
	s.mu.Lock()
	cell, ok := s.cells[main]
	if !ok {
		s.mu.Unlock()
		if soft {
			return nil
		}
		return newSystemError(CodeSystemNotCached, main.debugName(), nil)
	}
	dependents := append([]AnyExecutor(nil), s.graph.directDependents(main)...)
	delete(s.cells, main)
	s.graph.removeAll(main)
	releaseCbs := make([]func(AnyExecutor), 0, len(s.onReleaseCbs))
	for _, cb := range s.onReleaseCbs {
		releaseCbs = append(releaseCbs, cb)
	}
	s.mu.Unlock()

	cell.drainCleanups(func(r any) { s.notifyCleanupError(main, r) })
	for _, cb := range releaseCbs {
		invokeReleaseIsolated(cb, main)
	}
	for _, dep := range dependents {
		_ = s.release(dep, true)
	}
	return nil
}

func invokeReleaseIsolated(cb func(AnyExecutor), e AnyExecutor) {
	defer func() { _ = recover() }()
	cb(e)
}

func (s *Scope) fireError(err error) {
	s.mu.Lock()
	cbs := make([]func(error), 0, len(s.onErrorCbs))
	for _, cb := range s.onErrorCbs {
		cbs = append(cbs, cb)
	}
	exts := append([]Extension(nil), s.extensions...)
	s.mu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() { _ = recover() }()
			cb(err)
		}()
	}
	for _, ext := range exts {
		func() {
			defer func() { _ = recover() }()
			ext.OnError(err, s)
		}()
	}
}

// notifyCleanupError reports a panicking cleanup to every registered
// extension (spec.md Design Notes: cleanups are isolated, never let to
// interrupt release/dispose/update).
func (s *Scope) notifyCleanupError(exec AnyExecutor, recovered any) {
	s.mu.Lock()
	exts := append([]Extension(nil), s.extensions...)
	s.mu.Unlock()
	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("%v", recovered)
	}
	err := newSystemError(CodeSystemCleanupPanicked, exec.debugName(), cause)
	for _, ext := range exts {
		func() {
			defer func() { _ = recover() }()
			ext.OnCleanupError(err, exec)
		}()
	}
}

// onUpdate registers a plain callback against exec's cell, creating it
// if absent, and returns an unregister function. The callback is
// invoked with exec's accessor, not its raw value (spec.md §3.1(b),
// §4.5.3 "invoke it with D's accessor"), so a subscriber can turn
// around and Get/Lookup/Release what it was notified about.
func (s *Scope) onUpdate(exec AnyExecutor, cb func(*untypedAccessor)) func() {
	main := exec.mainExecutor()
	s.mu.Lock()
	cell, ok := s.cells[main]
	if !ok {
		cell = newPendingCell()
		s.cells[main] = cell
	}
	s.mu.Unlock()
	id := cell.addCallback(cb)
	return func() { cell.removeCallback(id) }
}

// OnError registers a scope-wide error observer.
func (s *Scope) OnError(cb func(error)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onErrorCbs == nil {
		s.onErrorCbs = make(map[uint64]func(error))
	}
	s.cbSeq++
	id := s.cbSeq
	s.onErrorCbs[id] = cb
	return func() {
		s.mu.Lock()
		delete(s.onErrorCbs, id)
		s.mu.Unlock()
	}
}

// OnRelease registers a scope-wide release observer.
func (s *Scope) OnRelease(cb func(AnyExecutor)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onReleaseCbs == nil {
		s.onReleaseCbs = make(map[uint64]func(AnyExecutor))
	}
	s.cbSeq++
	id := s.cbSeq
	s.onReleaseCbs[id] = cb
	return func() {
		s.mu.Lock()
		delete(s.onReleaseCbs, id)
		s.mu.Unlock()
	}
}

// Use appends ext to the chain, runs Init, and returns a remove func.
// Removal does not run Dispose; callers that need that should call it
// themselves before removing.
func (s *Scope) Use(ext Extension) (func(), error) {
	s.mu.Lock()
	if s.disposing || s.disposed {
		s.mu.Unlock()
		return nil, newSystemError(CodeSystemDisposed, "", nil)
	}
	s.extensions = append(s.extensions, ext)
	s.mu.Unlock()
	if err := ext.Init(s); err != nil {
		return nil, err
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := s.extensions[:0]
		for _, e := range s.extensions {
			if e != ext {
				out = append(out, e)
			}
		}
		s.extensions = out
	}, nil
}

// Pod forks a pod from this scope with the given presets (spec.md §4.6).
func (s *Scope) Pod(presets ...Preset) *Pod {
	child := &Scope{
		id:      uuid.New(),
		cells:   make(map[AnyExecutor]*cacheCell),
		graph:   newReactiveGraph(),
		presets: make(map[AnyExecutor]presetEntry),
		pods:    make(map[*Pod]struct{}),
		tags:    &DataStore{},
		isPod:   true,
		parent:  s,
		pool:    s.pool,
	}
	s.mu.Lock()
	child.extensions = append([]Extension(nil), s.extensions...)
	s.mu.Unlock()
	for _, p := range presets {
		child.presets[p.target.mainExecutor()] = p.entry
	}
	pod := &Pod{Scope: child}
	s.mu.Lock()
	s.pods[pod] = struct{}{}
	s.mu.Unlock()
	return pod
}

// Dispose implements spec.md §4.5.5: disposes every live pod, runs
// every extension's Dispose in registration order, soft-releases every
// cached descriptor, then locks the scope permanently.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed || s.disposing {
		s.mu.Unlock()
		return nil
	}
	s.disposing = true
	pods := make([]*Pod, 0, len(s.pods))
	for p := range s.pods {
		pods = append(pods, p)
	}
	exts := append([]Extension(nil), s.extensions...)
	mains := make([]AnyExecutor, 0, len(s.cells))
	for m := range s.cells {
		mains = append(mains, m)
	}
	s.mu.Unlock()

	for _, p := range pods {
		_ = p.Dispose()
	}
	for _, ext := range exts {
		_ = ext.Dispose(s)
	}
	for _, m := range mains {
		_ = s.release(m, true)
	}

	s.mu.Lock()
	s.disposed = true
	s.disposing = false
	if s.parent != nil {
		// pod removing itself from the parent's live set happens in Pod.Dispose
	}
	s.mu.Unlock()
	return nil
}

// untypedAccessor is the type-erased accessor handed to lazy/static
// dependency realizations; Accessor[T] wraps it for typed call sites.
type untypedAccessor struct {
	scope *Scope
	exec  AnyExecutor
}

func (s *Scope) untypedAccessor(exec AnyExecutor) *untypedAccessor {
	return &untypedAccessor{scope: s, exec: exec}
}

func (a *untypedAccessor) Get() (any, error) { return a.scope.resolveAny(a.exec, false) }

func (a *untypedAccessor) Lookup() (any, bool) {
	main := a.exec.mainExecutor()
	a.scope.mu.Lock()
	cell, ok := a.scope.cells[main]
	a.scope.mu.Unlock()
	if !ok {
		return nil, false
	}
	value, err, settled := cell.peek()
	if !settled || err != nil {
		return nil, false
	}
	return value, true
}

func (a *untypedAccessor) Release(soft bool) error { return a.scope.release(a.exec, soft) }

// Resolve realizes e against s (or returns its cached value) and
// returns it typed, per spec.md §4.5.1 "resolve".
func Resolve[T any](s *Scope, e *Executor[T]) (T, error) {
	v, err := s.resolveAny(e, false)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// ForceResolve is Resolve with force=true: it replaces the cache cell
// and re-runs the factory even if already resolved.
func ForceResolve[T any](s *Scope, e *Executor[T]) (T, error) {
	v, err := s.resolveAny(e, true)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Accessor is the stable, typed per-(scope, descriptor) handle (spec.md
// glossary "Accessor") exposing get/resolve/update/set/subscribe/release.
type Accessor[T any] struct {
	scope *Scope
	exec  *Executor[T]
}

// AccessorFor returns e's stable accessor on s without resolving it
// (spec.md §4.5.1 "accessor").
func AccessorFor[T any](s *Scope, e *Executor[T]) Accessor[T] {
	return Accessor[T]{scope: s, exec: e}
}

// ResolveAccessor resolves e then returns its accessor.
func ResolveAccessor[T any](s *Scope, e *Executor[T]) (Accessor[T], error) {
	if _, err := s.resolveAny(e, false); err != nil {
		return Accessor[T]{}, err
	}
	return AccessorFor(s, e), nil
}

func (a Accessor[T]) Get() (T, error) {
	v, err := a.scope.resolveAny(a.exec, false)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (a Accessor[T]) Lookup() (T, bool) {
	v, ok := a.scope.untypedAccessor(a.exec).Lookup()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func (a Accessor[T]) Resolve() (T, error) { return a.Get() }

func (a Accessor[T]) Update(fn func(T) T) error {
	return a.scope.update(a.exec, func(cur any) any {
		var curT T
		if cur != nil {
			curT = cur.(T)
		}
		return fn(curT)
	})
}

func (a Accessor[T]) Set(v T) error {
	return a.scope.update(a.exec, func(any) any { return v })
}

// Subscribe registers a plain callback invoked with this accessor every
// time its value updates (spec.md §3.1(b) "plain onUpdate subscribers")
// — not the raw value, so the subscriber can itself Get/Lookup/Release.
func (a Accessor[T]) Subscribe(cb func(Accessor[T])) func() {
	return a.scope.onUpdate(a.exec, func(*untypedAccessor) { cb(a) })
}

func (a Accessor[T]) Release(soft bool) error { return a.scope.release(a.exec, soft) }
