// Package schema is the schema adapter (spec.md §4.1, component C1): an
// opaque validate(value) -> value | issues contract that the rest of
// the module treats as a black box.
package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Issue is a single structured validation failure.
type Issue struct {
	Path    string
	Message string
}

// Error collects every Issue a failed Validate produced.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		if iss.Path != "" {
			parts[i] = fmt.Sprintf("%s: %s", iss.Path, iss.Message)
		} else {
			parts[i] = iss.Message
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Schema is the opaque contract every validated value in this module
// passes through. validate(schema, value) either returns the
// (possibly coerced) value or a *Error carrying issues.
type Schema[T any] interface {
	Validate(value any) (T, error)
}

// validatorInstance is shared across struct schemas, as recommended by
// go-playground/validator (it caches reflection metadata per type).
var validatorInstance = validator.New()

// structSchema validates a struct value using `validate:"..."` field
// tags, via go-playground/validator — the concrete backend behind C1
// for any schema whose values are Go structs.
type structSchema[T any] struct{}

// Struct builds a Schema backed by go-playground/validator struct
// tags. T must be a struct type (or pointer to one); values of any
// other shape fail validation.
func Struct[T any]() Schema[T] {
	return structSchema[T]{}
}

func (structSchema[T]) Validate(value any) (T, error) {
	var zero T
	typed, ok := value.(T)
	if !ok {
		return zero, &Error{Issues: []Issue{{Message: fmt.Sprintf("expected %T, got %T", zero, value)}}}
	}

	if err := validatorInstance.Struct(typed); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return zero, &Error{Issues: []Issue{{Message: err.Error()}}}
		}
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, Issue{
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			})
		}
		return zero, &Error{Issues: issues}
	}

	return typed, nil
}

// funcSchema adapts an arbitrary predicate/coercion function to Schema,
// for values that are not structs (scalars, slices, maps) and so can't
// carry validator tags.
type funcSchema[T any] struct {
	fn func(value any) (T, []Issue)
}

// Func builds a Schema from a plain validation function. Use this for
// non-struct shapes (scalars, slices, maps) that go-playground/validator
// cannot tag.
func Func[T any](fn func(value any) (T, []Issue)) Schema[T] {
	return funcSchema[T]{fn: fn}
}

func (f funcSchema[T]) Validate(value any) (T, error) {
	v, issues := f.fn(value)
	if len(issues) > 0 {
		return v, &Error{Issues: issues}
	}
	return v, nil
}

// customSchema is a legitimate no-op schema for values whose shape is
// already guaranteed by upstream typing (spec.md §4.1/§9 "custom<T>()").
type customSchema[T any] struct{}

// Custom returns a schema that performs no runtime checking and
// returns the value unchanged (after an interface type assertion).
func Custom[T any]() Schema[T] {
	return customSchema[T]{}
}

func (customSchema[T]) Validate(value any) (T, error) {
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, &Error{Issues: []Issue{{Message: fmt.Sprintf("expected %T, got %T", zero, value)}}}
	}
	return typed, nil
}
