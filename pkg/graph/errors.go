package graph

import (
	"fmt"
	"strings"

	"cbs/pkg/resource"
)

// Diagnostic is a message attached to a task result, optionally tied to a
// resource path and line number.
type Diagnostic struct {
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

func (d Diagnostic) String() string {
	switch {
	case d.Resource == "":
		return d.Message
	case d.Line > 0:
		return fmt.Sprintf("%s:%d: %s", d.Resource, d.Line, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.Resource, d.Message)
	}
}

// CompileError is a failure scoped to a single task. Returned from
// Builder.Build it fails that task only.
type CompileError struct {
	Resource string
	Line     int
	Message  string
	Err      error
}

// NewCompileError creates a compile error for res. res may be nil.
func NewCompileError(res resource.Resource, line int, format string, args ...any) *CompileError {
	e := &CompileError{Line: line, Message: fmt.Sprintf(format, args...)}
	if res != nil {
		e.Resource = res.Path()
	}
	return e
}

// WrapCompileError turns err into a compile error for res
func WrapCompileError(res resource.Resource, line int, err error) *CompileError {
	e := NewCompileError(res, line, "%v", err)
	e.Err = err
	return e
}

func (e *CompileError) Error() string {
	return e.Diagnostic().String()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Diagnostic converts the error into a task diagnostic
func (e *CompileError) Diagnostic() Diagnostic {
	return Diagnostic{Resource: e.Resource, Line: e.Line, Message: e.Message}
}

// MultipleCompileError bundles every failed task of a build
type MultipleCompileError struct {
	Results []TaskResult
}

func (e *MultipleCompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) failed", len(e.Results))
	for _, r := range e.Results {
		fmt.Fprintf(&b, "\n  %s", r.Task.Name())
		for _, d := range r.Diagnostics {
			fmt.Fprintf(&b, "\n    %s", d)
		}
	}
	return b.String()
}

// Failures returns a *MultipleCompileError holding every failed result, or
// nil when all results are ok.
func Failures(results []TaskResult) error {
	var failed []TaskResult
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &MultipleCompileError{Results: failed}
}

// ConflictError reports two tasks claiming the same output path
type ConflictError struct {
	Output string
	First  *Task
	Second *Task
}

// Ambiguous reports whether both tasks were created for the same input,
// i.e. more than one builder matched it.
func (e *ConflictError) Ambiguous() bool {
	return primaryInput(e.First) != "" && primaryInput(e.First) == primaryInput(e.Second)
}

func (e *ConflictError) Error() string {
	first, second := builderName(e.First), builderName(e.Second)
	if e.Ambiguous() {
		return fmt.Sprintf("ambiguous builder for %s: %s and %s both produce %s",
			primaryInput(e.First), first, second, e.Output)
	}
	return fmt.Sprintf("conflicting output %s generated by %s (%s) and %s (%s)",
		e.Output, primaryInput(e.First), first, primaryInput(e.Second), second)
}

// CycleError reports tasks that depend on their own outputs
type CycleError struct {
	Tasks []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in task graph: %s", strings.Join(e.Tasks, ", "))
}

func primaryInput(t *Task) string {
	if t == nil || len(t.inputs) == 0 {
		return ""
	}
	return t.inputs[0].Path()
}

func builderName(t *Task) string {
	if t == nil || t.builder == nil {
		return "<nil>"
	}
	return t.builder.Params().Name
}
