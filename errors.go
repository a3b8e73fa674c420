package pumped

import (
	"fmt"
	"strings"
)

// Category classifies the origin of an Error.
type Category string

const (
	CategorySchema     Category = "schema"
	CategoryFactory    Category = "factory"
	CategoryDependency Category = "dependency"
	CategorySystem     Category = "system"
)

// Code identifies a specific failure mode within a Category.
type Code string

const (
	CodeSchemaInvalid           Code = "schema.invalid"
	CodeFactoryPanicked         Code = "factory.panicked"
	CodeFactoryRejected         Code = "factory.rejected"
	CodeDependencyCycle         Code = "dependency.cycle"
	CodeDependencyMissing       Code = "dependency.missing"
	CodeDependencyReactiveInPod Code = "dependency.reactive_in_pod"
	CodeDependencyFailed        Code = "dependency.failed"
	CodeSystemDisposed          Code = "system.disposed"
	CodeSystemNotCached         Code = "system.not_cached"
	CodeSystemCleanupPanicked   Code = "system.cleanup_panicked"
	CodeSystemChangeCallback    Code = "system.change_callback"
	CodeSystemDoubleNext        Code = "system.wrap_double_next"
	CodeSystemNoNext            Code = "system.wrap_no_next"
)

// Issue is a single structured validation failure, per the schema
// protocol's `{ path?, message }` shape (spec.md §4.1/§6).
type Issue struct {
	Path    string
	Message string
}

// Error is the taxonomy described in spec.md §7: every core-raised
// error carries a Code, a Category, the name of the executor it
// occurred in, and the chain of executor names being resolved when it
// happened (innermost last).
type Error struct {
	Code            Code
	Category        Category
	ExecutorName    string
	DependencyChain []string
	Issues          []Issue
	Cause           error
	message         string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.message != "" {
		b.WriteString(e.message)
	} else {
		b.WriteString(string(e.Category))
		b.WriteString(" error")
	}
	if e.ExecutorName != "" {
		fmt.Fprintf(&b, " in %s", e.ExecutorName)
	}
	if len(e.DependencyChain) > 0 {
		fmt.Fprintf(&b, " (chain: %s)", strings.Join(e.DependencyChain, " -> "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func newSchemaError(executorName string, issues []Issue) *Error {
	return &Error{
		Code:         CodeSchemaInvalid,
		Category:     CategorySchema,
		ExecutorName: executorName,
		Issues:       issues,
		message:      "validation failed",
	}
}

func newFactoryExecutionError(executorName string, chain []string, cause error) *Error {
	return &Error{
		Code:            CodeFactoryRejected,
		Category:        CategoryFactory,
		ExecutorName:    executorName,
		DependencyChain: chain,
		Cause:           cause,
		message:         "factory execution failed",
	}
}

func newFactoryPanicError(executorName string, chain []string, recovered any) *Error {
	return &Error{
		Code:            CodeFactoryPanicked,
		Category:        CategoryFactory,
		ExecutorName:    executorName,
		DependencyChain: chain,
		Cause:           fmt.Errorf("panic: %v", recovered),
		message:         "factory panicked",
	}
}

func newDependencyResolutionError(code Code, executorName string, chain []string, cause error) *Error {
	return &Error{
		Code:            code,
		Category:        CategoryDependency,
		ExecutorName:    executorName,
		DependencyChain: chain,
		Cause:           cause,
		message:         "dependency resolution failed",
	}
}

func newSystemError(code Code, executorName string, cause error) *Error {
	return &Error{
		Code:         code,
		Category:     CategorySystem,
		ExecutorName: executorName,
		Cause:        cause,
		message:      "internal error",
	}
}

func chainNames(chain []AnyExecutor) []string {
	if len(chain) == 0 {
		return nil
	}
	names := make([]string, len(chain))
	for i, e := range chain {
		names[i] = e.debugName()
	}
	return names
}
