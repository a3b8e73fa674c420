package pumped

// ResolveContext is the factory-visible capability bundle (spec.md §4.4
// "controller", §9 "Controller closure"): cleanup registration, release,
// and forced reload of the descriptor currently being resolved, plus a
// reference to the owning scope for reentrant resolves. One is taken
// from the scope's pool and bound per resolution, then returned to the
// pool after the factory call, so it must not be retained past it.
type ResolveContext struct {
	scope *Scope
	exec  AnyExecutor
}

// Scope returns the scope this factory is resolving against. Factories
// may use it to resolve other descriptors reentrantly; doing so must
// not close a cycle back to the descriptor being resolved.
func (rc *ResolveContext) Scope() *Scope { return rc.scope }

// Cleanup appends fn to this descriptor's cleanup stack. Cleanups run
// LIFO on release, on reactive re-resolve, and on scope dispose.
func (rc *ResolveContext) Cleanup(fn func()) {
	rc.scope.addCleanup(rc.exec, fn)
}

// Release releases this descriptor's own cache entry (soft: false),
// draining its cleanups and cascading to its reactive dependents.
func (rc *ResolveContext) Release() error {
	return rc.scope.release(rc.exec, false)
}

// Reload forces this descriptor to re-resolve now, re-running its
// factory, and returns the error of that resolution.
func (rc *ResolveContext) Reload() error {
	_, err := rc.scope.resolveAny(rc.exec, true)
	return err
}
