package pumped

// Pod is a short-lived scope fork used by flow executions (spec.md
// §4.6, glossary "Pod"): it inherits the parent's cache on first
// touch, forbids reactive dependency variants, and disposes in
// isolation from the parent. Pod embeds *Scope so every Scope method
// (Pod, Use, OnError, ...) works unchanged, and pod.Scope can be passed
// to the functions that take a *Scope (Resolve, AccessorFor, ...);
// resolveChain/realizeDep special-case s.isPod for the two overrides.
type Pod struct {
	*Scope
}

// Dispose runs every extension's DisposePod hook, removes the pod from
// its parent's live set, then disposes the pod's own scope (spec.md
// §3.3 "Pod" lifecycle).
func (p *Pod) Dispose() error {
	p.Scope.mu.Lock()
	if p.Scope.disposed || p.Scope.disposing {
		p.Scope.mu.Unlock()
		return nil
	}
	exts := append([]Extension(nil), p.Scope.extensions...)
	parent := p.Scope.parent
	p.Scope.mu.Unlock()

	for _, ext := range exts {
		_ = ext.DisposePod(p)
	}
	if parent != nil {
		parent.mu.Lock()
		delete(parent.pods, p)
		parent.mu.Unlock()
	}
	return p.Scope.Dispose()
}

// initPod runs every extension's InitPod hook against ctx, in
// registration order (spec.md §4.7.2 step 2).
func (p *Pod) initPod(ctx *FlowContext) error {
	p.Scope.mu.Lock()
	exts := append([]Extension(nil), p.Scope.extensions...)
	p.Scope.mu.Unlock()
	for _, ext := range exts {
		if err := ext.InitPod(p, ctx); err != nil {
			return err
		}
	}
	return nil
}
