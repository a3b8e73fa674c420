package pumped

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pumped-fn/pumped-go-sub001/pkg/schema"
)

// Built-in flow context accessors (spec.md §4.7.1 "seed the built-in
// accessors"). Use schema.Custom since these values are produced by
// the engine itself, never by user input.
var (
	FlowDepthKey      = NewMetaKey[int]("flow.depth", schema.Custom[int]())
	FlowNameKey       = NewMetaKey[string]("flow.name", schema.Custom[string]())
	FlowParentNameKey = NewMetaKey[string]("flow.parentName", schema.Custom[string]())
	FlowIsParallelKey = NewMetaKey[bool]("flow.isParallel", schema.Custom[bool]())
)

// HandlerFunc is the resolved value of a flow handler executor (spec.md
// §3.1 "Flow handler executor").
type HandlerFunc[In, Out any] func(ctx *FlowContext, input In) (Out, error)

// FlowDefinition carries a flow's identity and schemas (spec.md §3.1
// "Flow definition"). Output is optional; leave it nil to skip output
// validation. A definition carries no error schema: a handler's error
// is returned as is, without validation.
type FlowDefinition[In, Out any] struct {
	Name    string
	Version string
	Input   schema.Schema[In]
	Output  schema.Schema[Out]
}

// Handler binds a dependency-free function to def, yielding an
// executor descriptor (spec.md §4.7.1 "handler(fn)").
func (d FlowDefinition[In, Out]) Handler(fn HandlerFunc[In, Out]) *Executor[HandlerFunc[In, Out]] {
	return Provide(func(*ResolveContext) (HandlerFunc[In, Out], error) { return fn, nil }).Named(d.Name)
}

// HandlerWithDeps binds a function of realized dependencies to def
// (spec.md §4.7.1 "handler(deps, fn)"); the handler closes over the
// resolved dependency value.
func HandlerWithDeps[In, Out, Deps any](d FlowDefinition[In, Out], dep Dependency, fn func(deps Deps, ctx *FlowContext, input In) (Out, error)) *Executor[HandlerFunc[In, Out]] {
	return Derive(dep, func(_ *ResolveContext, realized any) (HandlerFunc[In, Out], error) {
		deps := realized.(Deps)
		return func(ctx *FlowContext, input In) (Out, error) {
			return fn(deps, ctx, input)
		}, nil
	}).Named(d.Name)
}

// FlowContext is the per-invocation record carried through execute,
// exec, run, and parallel (spec.md §3.1 "Execution context (flow)").
// It embeds *DataStore so it satisfies MetaSource directly.
type FlowContext struct {
	*DataStore
	id             uuid.UUID
	pod            *Pod
	parent         *FlowContext
	depth          int
	parallel       bool
	parentFlowName string
	flowName       string
}

func newRootFlowContext(pod *Pod, flowName string, seed []Meta) *FlowContext {
	ctx := &FlowContext{
		DataStore: NewDataStore(seed...),
		id:        uuid.New(),
		pod:       pod,
		flowName:  flowName,
	}
	FlowDepthKey.MustSet(ctx.DataStore, 0)
	FlowNameKey.MustSet(ctx.DataStore, flowName)
	FlowParentNameKey.MustSet(ctx.DataStore, "")
	FlowIsParallelKey.MustSet(ctx.DataStore, false)
	return ctx
}

func (c *FlowContext) child(flowName string, parallel bool) *FlowContext {
	child := &FlowContext{
		DataStore:      c.DataStore.Copy(),
		id:             uuid.New(),
		pod:            c.pod,
		parent:         c,
		depth:          c.depth + 1,
		parallel:       parallel || c.parallel,
		parentFlowName: c.flowName,
		flowName:       flowName,
	}
	FlowDepthKey.MustSet(child.DataStore, child.depth)
	FlowNameKey.MustSet(child.DataStore, flowName)
	FlowParentNameKey.MustSet(child.DataStore, c.flowName)
	FlowIsParallelKey.MustSet(child.DataStore, child.parallel)
	return child
}

// Pod returns the pod this context is executing on.
func (c *FlowContext) Pod() *Pod { return c.pod }

// Name returns this context's flow name.
func (c *FlowContext) Name() string { return c.flowName }

// ParentName returns the name of the flow that spawned this context as
// a subflow, or "" at the root.
func (c *FlowContext) ParentName() string { return c.parentFlowName }

// Depth returns 0 at the root, incrementing by one per nested exec.
func (c *FlowContext) Depth() int { return c.depth }

// IsParallel reports the parallel flag this context carries, which
// subflows inherit from their parent. Parallel and ParallelSettled do
// not set it: their tasks get no context of their own, so a subflow
// started inside a parallel batch reports false.
func (c *FlowContext) IsParallel() bool { return c.parallel }

// ExecuteOption configures a root Execute call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	initialContext []Meta
	presets        []Preset
}

// WithInitialContext seeds the root flow context's DataStore.
func WithInitialContext(entries ...Meta) ExecuteOption {
	return func(c *executeConfig) { c.initialContext = append(c.initialContext, entries...) }
}

// WithExecutePresets forwards presets to the pod Execute creates.
func WithExecutePresets(presets ...Preset) ExecuteOption {
	return func(c *executeConfig) { c.presets = append(c.presets, presets...) }
}

// Execute runs handler as a root flow (spec.md §4.7.2). If scope is
// nil, an ephemeral scope is created and disposed around the call.
func Execute[In, Out any](scope *Scope, handler *Executor[HandlerFunc[In, Out]], def FlowDefinition[In, Out], input In, opts ...ExecuteOption) (Out, error) {
	var zero Out
	cfg := &executeConfig{}
	for _, o := range opts {
		o(cfg)
	}

	ephemeral := scope == nil
	if ephemeral {
		scope = NewScope()
	}
	pod := scope.Pod(cfg.presets...)

	if def.Input != nil {
		validated, err := def.Input.Validate(input)
		if err != nil {
			_ = pod.Dispose()
			if ephemeral {
				_ = scope.Dispose()
			}
			return zero, newSchemaError(def.Name, schemaIssues(err))
		}
		input = validated
	}

	ctx := newRootFlowContext(pod, def.Name, cfg.initialContext)
	if err := pod.initPod(ctx); err != nil {
		_ = pod.Dispose()
		if ephemeral {
			_ = scope.Dispose()
		}
		return zero, err
	}

	fn, err := Resolve(pod.Scope, handler)
	if err != nil {
		_ = pod.Dispose()
		if ephemeral {
			_ = scope.Dispose()
		}
		return zero, err
	}

	pod.Scope.mu.Lock()
	exts := append([]Extension(nil), pod.Scope.extensions...)
	pod.Scope.mu.Unlock()

	op := Operation{Kind: OpExecute, FlowName: def.Name, Depth: 0, Input: input}
	result, err := pod.Scope.wrapChain(exts, op, func() (any, error) {
		return fn(ctx, input)
	})

	if err != nil {
		for _, ext := range exts {
			func() {
				defer func() { _ = recover() }()
				ext.OnPodError(err, pod, ctx)
			}()
		}
		_ = pod.Dispose()
		if ephemeral {
			_ = scope.Dispose()
		}
		return zero, err
	}

	out, _ := result.(Out)
	if def.Output != nil {
		validated, verr := def.Output.Validate(out)
		if verr != nil {
			_ = pod.Dispose()
			if ephemeral {
				_ = scope.Dispose()
			}
			return zero, newSchemaError(def.Name, schemaIssues(verr))
		}
		out = validated
	}

	_ = pod.Dispose()
	if ephemeral {
		_ = scope.Dispose()
	}
	return out, nil
}

// Exec runs a child handler as a subflow inside ctx's pod (spec.md
// §4.7.3 "exec").
func Exec[In, Out any](ctx *FlowContext, handler *Executor[HandlerFunc[In, Out]], def FlowDefinition[In, Out], input In) (Out, error) {
	var zero Out
	if def.Input != nil {
		validated, err := def.Input.Validate(input)
		if err != nil {
			return zero, newSchemaError(def.Name, schemaIssues(err))
		}
		input = validated
	}

	child := ctx.child(def.Name, ctx.parallel)

	fn, err := Resolve(ctx.pod.Scope, handler)
	if err != nil {
		return zero, err
	}

	ctx.pod.Scope.mu.Lock()
	exts := append([]Extension(nil), ctx.pod.Scope.extensions...)
	ctx.pod.Scope.mu.Unlock()

	op := Operation{Kind: OpSubflow, FlowName: def.Name, ParentFlowName: ctx.flowName, Depth: child.depth, Parallel: child.parallel, Input: input}
	result, err := ctx.pod.Scope.wrapChain(exts, op, func() (any, error) {
		return fn(child, input)
	})
	if err != nil {
		return zero, err
	}

	out, _ := result.(Out)
	if def.Output != nil {
		validated, verr := def.Output.Validate(out)
		if verr != nil {
			return zero, newSchemaError(def.Name, schemaIssues(verr))
		}
		out = validated
	}
	return out, nil
}

// Run executes a journaled step: fn is invoked every call (spec.md §9
// "do not invent a replay policy in the core" — replay, if any, is an
// extension's concern, observing the "journal" operation kind).
func Run[T any](ctx *FlowContext, key string, fn func() (T, error)) (T, error) {
	var zero T
	ctx.pod.Scope.mu.Lock()
	exts := append([]Extension(nil), ctx.pod.Scope.extensions...)
	ctx.pod.Scope.mu.Unlock()

	op := Operation{Kind: OpJournal, FlowName: ctx.flowName, ParentFlowName: ctx.parentFlowName, Depth: ctx.depth, JournalKey: key}
	result, err := ctx.pod.Scope.wrapChain(exts, op, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	out, _ := result.(T)
	return out, nil
}

// Settled is one element of ParallelSettled's result (spec.md §4.7.3).
type Settled[T any] struct {
	Value T
	Err   error
}

// Parallel runs tasks concurrently and aggregates in input order,
// rejecting on the first (lowest-index) error (spec.md §4.7.3, §5
// "aggregation preserves the input order").
func Parallel[T any](ctx *FlowContext, tasks []func() (T, error)) ([]T, error) {
	ctx.pod.Scope.mu.Lock()
	exts := append([]Extension(nil), ctx.pod.Scope.extensions...)
	ctx.pod.Scope.mu.Unlock()

	op := Operation{Kind: OpParallel, FlowName: ctx.flowName, Depth: ctx.depth, Size: len(tasks)}
	result, err := ctx.pod.Scope.wrapChain(exts, op, func() (any, error) {
		values := make([]T, len(tasks))
		errs := make([]error, len(tasks))
		var wg sync.WaitGroup
		for i, t := range tasks {
			wg.Add(1)
			go func(i int, t func() (T, error)) {
				defer wg.Done()
				v, e := t()
				values[i] = v
				errs[i] = e
			}(i, t)
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]T), nil
}

// ParallelSettled runs tasks concurrently; every element carries its
// own outcome rather than short-circuiting on error (spec.md §4.7.3).
func ParallelSettled[T any](ctx *FlowContext, tasks []func() (T, error)) []Settled[T] {
	ctx.pod.Scope.mu.Lock()
	exts := append([]Extension(nil), ctx.pod.Scope.extensions...)
	ctx.pod.Scope.mu.Unlock()

	op := Operation{Kind: OpParallel, FlowName: ctx.flowName, Depth: ctx.depth, Size: len(tasks)}
	result, _ := ctx.pod.Scope.wrapChain(exts, op, func() (any, error) {
		out := make([]Settled[T], len(tasks))
		var wg sync.WaitGroup
		for i, t := range tasks {
			wg.Add(1)
			go func(i int, t func() (T, error)) {
				defer wg.Done()
				v, e := t()
				out[i] = Settled[T]{Value: v, Err: e}
			}(i, t)
		}
		wg.Wait()
		return out, nil
	})
	return result.([]Settled[T])
}

func schemaIssues(err error) []Issue {
	if se, ok := err.(*schema.Error); ok {
		out := make([]Issue, len(se.Issues))
		for i, iss := range se.Issues {
			out[i] = Issue{Path: iss.Path, Message: iss.Message}
		}
		return out
	}
	return []Issue{{Message: err.Error()}}
}
