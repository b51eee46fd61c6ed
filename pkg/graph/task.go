package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cbs/pkg/resource"
)

// Builder is a transformation rule for a set of input extensions
type Builder interface {
	// Params returns the immutable description of the builder
	Params() Params

	// Create returns the task that builds input. It may add further inputs
	// and spawn resources that are routed back through builder matching.
	Create(cc CreateContext, input resource.Resource) (*Task, error)

	// Build writes every declared output of task. A *CompileError marks only
	// this task as failed; any other error aborts the whole build.
	Build(ctx context.Context, task *Task) error
}

// SignatureSource is implemented by builders whose output depends on global
// options. The returned bytes are folded into the task signature.
type SignatureSource interface {
	SignatureBytes(opts Options) []byte
}

// CreateContext is what a builder can see while creating a task
type CreateContext interface {
	// FS returns the file system of the project
	FS() resource.FileSystem

	// Options returns the global build options
	Options() Options

	// Tasks returns the tasks created so far, in creation order
	Tasks() []*Task
}

// Task is one application of a builder to specific inputs. Its identity is
// the set of its output paths.
type Task struct {
	builder     Builder
	inputs      []resource.Resource
	outputs     []resource.Resource
	spawned     []resource.Resource
	generatedBy *Task
	options     Options
	noCache     bool
}

// NewTask creates an empty task for builder b
func NewTask(b Builder) *Task {
	return &Task{builder: b}
}

// AddInput appends inputs
func (t *Task) AddInput(rs ...resource.Resource) *Task {
	t.inputs = append(t.inputs, rs...)
	return t
}

// AddOutput appends outputs
func (t *Task) AddOutput(rs ...resource.Resource) *Task {
	t.outputs = append(t.outputs, rs...)
	return t
}

// Spawn requests a task for r, created as generated by t
func (t *Task) Spawn(rs ...resource.Resource) *Task {
	t.spawned = append(t.spawned, rs...)
	return t
}

// DisableCache keeps the outputs of t out of the output cache
func (t *Task) DisableCache() *Task {
	t.noCache = true
	return t
}

// Cacheable reports whether outputs of t may be restored from a cache
func (t *Task) Cacheable() bool {
	return !t.noCache
}

// Builder returns the builder of the task
func (t *Task) Builder() Builder {
	return t.builder
}

// Inputs returns the ordered inputs
func (t *Task) Inputs() []resource.Resource {
	return t.inputs
}

// Outputs returns the ordered outputs
func (t *Task) Outputs() []resource.Resource {
	return t.outputs
}

// Input returns the i:th input
func (t *Task) Input(i int) resource.Resource {
	return t.inputs[i]
}

// Output returns the i:th output
func (t *Task) Output(i int) resource.Resource {
	return t.outputs[i]
}

// Spawned returns the resources the task asked to be built
func (t *Task) Spawned() []resource.Resource {
	return t.spawned
}

// GeneratedBy returns the task that spawned this one, or nil
func (t *Task) GeneratedBy() *Task {
	return t.generatedBy
}

// SetGeneratedBy links t to the task that spawned it
func (t *Task) SetGeneratedBy(parent *Task) {
	t.generatedBy = parent
}

// Options returns the build options the task was created with
func (t *Task) Options() Options {
	if t.options == nil {
		return Options{}
	}
	return t.options
}

// SetOptions records the build options the task was created with
func (t *Task) SetOptions(opts Options) {
	t.options = opts
}

// OutputPaths returns the output paths in declaration order
func (t *Task) OutputPaths() []string {
	paths := make([]string, len(t.outputs))
	for i, o := range t.outputs {
		paths[i] = o.Path()
	}
	return paths
}

// InputPaths returns the input paths in declaration order
func (t *Task) InputPaths() []string {
	paths := make([]string, len(t.inputs))
	for i, in := range t.inputs {
		paths[i] = in.Path()
	}
	return paths
}

// ID returns the identity of the task: its sorted output paths
func (t *Task) ID() string {
	paths := t.OutputPaths()
	sort.Strings(paths)
	return strings.Join(paths, ",")
}

// Name returns a human readable name: the builder and the primary input
func (t *Task) Name() string {
	name := "<nil>"
	if t.builder != nil {
		name = t.builder.Params().Name
	}
	if len(t.inputs) == 0 {
		return name
	}
	return fmt.Sprintf("%s %s", name, t.inputs[0].Path())
}

func (t *Task) String() string {
	return t.Name()
}

// OutputFor returns the default output of b for input: the input path with
// the extension replaced, moved under the build directory.
func OutputFor(b Builder, input resource.Resource) resource.Resource {
	return input.ChangeExt(b.Params().OutExt).Output()
}

// DefaultTask creates the common single input, single output task
func DefaultTask(b Builder, input resource.Resource) *Task {
	return NewTask(b).AddInput(input).AddOutput(OutputFor(b, input))
}

// TaskResult is the outcome of one attempted task
type TaskResult struct {
	Task        *Task
	OK          bool
	Diagnostics []Diagnostic
	// Cached is set when the outputs were restored from the output cache
	Cached bool
}
