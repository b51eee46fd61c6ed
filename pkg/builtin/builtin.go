// Package builtin provides the reference builders shipped with the engine.
package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cbs/pkg/graph"
	"cbs/pkg/registry"
	"cbs/pkg/resource"
)

// Module registers every builtin builder
var Module registry.Module = module{}

type module struct{}

func (module) Register(r *registry.Registry) error {
	return r.Register(Copy{}, Number{}, Dynamic{}, Compile{}, Emit{}, Script{}, Manifest{})
}

// Copy copies .in files to .out
type Copy struct{}

func (Copy) Params() graph.Params {
	return graph.Params{Name: "Copy", InExts: []string{".in"}, OutExt: ".out"}
}

func (b Copy) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(b, input), nil
}

func (Copy) Build(ctx context.Context, task *graph.Task) error {
	data, err := task.Input(0).Content()
	if err != nil {
		return err
	}
	return task.Output(0).SetContent(data)
}

// Number parses an integer and writes it multiplied by ten
type Number struct{}

func (Number) Params() graph.Params {
	return graph.Params{Name: "Number", InExts: []string{".number"}, OutExt: ".numberc"}
}

func (b Number) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(b, input), nil
}

func (Number) Build(ctx context.Context, task *graph.Task) error {
	data, err := task.Input(0).Content()
	if err != nil {
		return err
	}
	s := strings.TrimSpace(string(data))
	n, err := strconv.Atoi(s)
	if err != nil {
		return graph.NewCompileError(task.Input(0), 1, "invalid number %q", s)
	}
	return task.Output(0).SetContent([]byte(strconv.Itoa(n * 10)))
}

// OptimizationOption selects the optimization level of Compile
const OptimizationOption = "OPTIM"

// Compile stands in for a compiler whose output depends on the
// optimization option
type Compile struct{}

func (Compile) Params() graph.Params {
	return graph.Params{Name: "Compile", InExts: []string{".c"}, OutExt: ".o"}
}

func (b Compile) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(b, input), nil
}

func (Compile) SignatureBytes(opts graph.Options) []byte {
	return []byte(opts.Option(OptimizationOption, ""))
}

func (Compile) Build(ctx context.Context, task *graph.Task) error {
	data, err := task.Input(0).Content()
	if err != nil {
		return err
	}
	optim := task.Options().Option(OptimizationOption, "-O0")
	out := fmt.Sprintf("; %s %s\n%s", task.Input(0).Path(), optim, data)
	return task.Output(0).SetContent([]byte(out))
}

// Emit always writes its output and fails on empty input
type Emit struct{}

func (Emit) Params() graph.Params {
	return graph.Params{Name: "Emit", InExts: []string{".emit"}, OutExt: ".emitc"}
}

func (b Emit) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(b, input), nil
}

func (Emit) Build(ctx context.Context, task *graph.Task) error {
	data, err := task.Input(0).Content()
	if err != nil {
		return err
	}
	if err := task.Output(0).SetContent(data); err != nil {
		return err
	}
	if len(data) == 0 {
		return graph.NewCompileError(task.Input(0), 0, "empty input")
	}
	return nil
}
