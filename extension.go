package pumped

// OperationKind discriminates the five observable operations an
// Extension's Wrap middleware may see (spec.md §4.8).
type OperationKind int

const (
	OpResolve OperationKind = iota
	OpExecute
	OpSubflow
	OpJournal
	OpParallel
)

func (k OperationKind) String() string {
	switch k {
	case OpResolve:
		return "resolve"
	case OpExecute:
		return "execute"
	case OpSubflow:
		return "subflow"
	case OpJournal:
		return "journal"
	case OpParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Operation is the discriminated payload passed to Wrap; only the
// fields relevant to Kind are populated (spec.md §6 "operation payloads").
type Operation struct {
	Kind OperationKind

	// OpResolve
	Executor       AnyExecutor
	Scope          *Scope
	ResolveSubkind string // "resolve" | "update"

	// OpExecute / OpSubflow
	FlowName       string
	ParentFlowName string
	Depth          int
	Parallel       bool
	Input          any

	// OpJournal
	JournalKey string

	// OpParallel
	Size int
}

// Extension is a named interceptor with optional lifecycle hooks and a
// Wrap middleware around every observable operation. Embed
// BaseExtension to get no-op defaults for the hooks you don't need.
type Extension interface {
	Name() string
	Init(scope *Scope) error
	Dispose(scope *Scope) error
	InitPod(pod *Pod, ctx *FlowContext) error
	DisposePod(pod *Pod) error
	Wrap(op Operation, next func() (any, error)) (any, error)
	OnError(err error, scope *Scope)
	OnPodError(err error, pod *Pod, ctx *FlowContext)
	OnCleanupError(err error, exec AnyExecutor)
}

// BaseExtension supplies no-op implementations for every Extension
// hook; concrete extensions embed it and override only what they need.
type BaseExtension struct{ ExtName string }

func (b BaseExtension) Name() string                { return b.ExtName }
func (b BaseExtension) Init(*Scope) error            { return nil }
func (b BaseExtension) Dispose(*Scope) error         { return nil }
func (b BaseExtension) InitPod(*Pod, *FlowContext) error { return nil }
func (b BaseExtension) DisposePod(*Pod) error        { return nil }
func (b BaseExtension) Wrap(op Operation, next func() (any, error)) (any, error) {
	return next()
}
func (b BaseExtension) OnError(error, *Scope)               {}
func (b BaseExtension) OnPodError(error, *Pod, *FlowContext) {}
func (b BaseExtension) OnCleanupError(error, AnyExecutor)    {}

// wrapGuard wraps next() so an extension's Wrap is caught calling it
// zero or >1 times, turning either into a SystemError (spec.md §9
// "Implementations must guard against extensions that fail to call
// next or call it more than once").
type wrapGuard struct {
	inner  func() (any, error)
	called bool
}

func (g *wrapGuard) call() (any, error) {
	if g.called {
		return nil, newSystemError(CodeSystemDoubleNext, "", nil)
	}
	g.called = true
	return g.inner()
}

// buildChain wraps terminal with each extension's Wrap in registration
// order, each one around the chain built so far, so that the
// LAST-registered extension ends up outermost (spec.md §4.8
// "registration order, last-registered outermost").
func buildChain(exts []Extension, op Operation, terminal func() (any, error)) func() (any, error) {
	next := terminal
	for i := 0; i < len(exts); i++ {
		ext := exts[i]
		innerNext := next
		next = func() (any, error) {
			guard := &wrapGuard{inner: innerNext}
			result, err := ext.Wrap(op, guard.call)
			if !guard.called {
				return nil, newSystemError(CodeSystemNoNext, "", err)
			}
			return result, err
		}
	}
	return next
}

func (s *Scope) wrapChain(exts []Extension, op Operation, terminal func() (any, error)) (any, error) {
	return buildChain(exts, op, terminal)()
}
