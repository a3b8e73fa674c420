package pumped

import "sync"

// PoolManager pools hot-path allocations. A Scope draws from it the
// ResolveContext for each factory invocation and the extension-chain
// snapshot for each resolve; update takes a plain copy instead. The
// cleanup-slice pool is available to callers, but the scope's cache
// cells do not draw from it.
type PoolManager struct {
	resolveCtxPool sync.Pool
	extensionPool  sync.Pool
	cleanupPool    sync.Pool

	metrics PoolMetrics
}

// PoolMetrics tracks pool hit/miss counters for introspection, read
// through PoolManager.Metrics. A Scope does not export its own pool or
// its counters.
type PoolMetrics struct {
	mu              sync.RWMutex
	resolveCtxHits   uint64
	resolveCtxMisses uint64
	extensionHits    uint64
	extensionMisses  uint64
	cleanupHits      uint64
	cleanupMisses    uint64
}

// NewPoolManager creates an empty pool manager; pools fill lazily on
// first release.
func NewPoolManager() *PoolManager { return &PoolManager{} }

func newPoolManager() *PoolManager { return NewPoolManager() }

// AcquireResolveContext gets a ResolveContext from the pool, rebound to
// scope/exec, or allocates one on a pool miss.
func (pm *PoolManager) AcquireResolveContext(scope *Scope, exec AnyExecutor) *ResolveContext {
	rc, ok := pm.resolveCtxPool.Get().(*ResolveContext)
	if !ok {
		rc = &ResolveContext{}
	}
	rc.scope = scope
	rc.exec = exec

	pm.metrics.mu.Lock()
	if ok {
		pm.metrics.resolveCtxHits++
	} else {
		pm.metrics.resolveCtxMisses++
	}
	pm.metrics.mu.Unlock()
	return rc
}

// ReleaseResolveContext returns rc to the pool. Callers must not retain
// rc past this call (spec.md §9 "avoid leaking controllers beyond
// factory scope").
func (pm *PoolManager) ReleaseResolveContext(rc *ResolveContext) {
	if rc == nil {
		return
	}
	rc.scope = nil
	rc.exec = nil
	pm.resolveCtxPool.Put(rc)
}

// AcquireExtensionSlice gets a zero-length, reusable []Extension.
func (pm *PoolManager) AcquireExtensionSlice() []Extension {
	slice, ok := pm.extensionPool.Get().([]Extension)
	pm.metrics.mu.Lock()
	if ok {
		pm.metrics.extensionHits++
	} else {
		pm.metrics.extensionMisses++
	}
	pm.metrics.mu.Unlock()
	return slice[:0]
}

// ReleaseExtensionSlice returns slice to the pool.
func (pm *PoolManager) ReleaseExtensionSlice(slice []Extension) {
	if slice == nil {
		return
	}
	pm.extensionPool.Put(slice[:0])
}

// AcquireCleanupSlice gets a zero-length, reusable cleanup stack.
func (pm *PoolManager) AcquireCleanupSlice() []func() {
	slice, ok := pm.cleanupPool.Get().([]func())
	pm.metrics.mu.Lock()
	if ok {
		pm.metrics.cleanupHits++
	} else {
		pm.metrics.cleanupMisses++
	}
	pm.metrics.mu.Unlock()
	return slice[:0]
}

// ReleaseCleanupSlice returns slice to the pool.
func (pm *PoolManager) ReleaseCleanupSlice(slice []func()) {
	if slice == nil {
		return
	}
	pm.cleanupPool.Put(slice[:0])
}

// Metrics returns a copy of the current pool hit/miss counters.
func (pm *PoolManager) Metrics() PoolMetrics {
	pm.metrics.mu.RLock()
	defer pm.metrics.mu.RUnlock()
	return PoolMetrics{
		resolveCtxHits:   pm.metrics.resolveCtxHits,
		resolveCtxMisses: pm.metrics.resolveCtxMisses,
		extensionHits:    pm.metrics.extensionHits,
		extensionMisses:  pm.metrics.extensionMisses,
		cleanupHits:      pm.metrics.cleanupHits,
		cleanupMisses:    pm.metrics.cleanupMisses,
	}
}
