package builtin

import (
	"context"
	"fmt"
	"strings"

	"cbs/pkg/graph"
	"cbs/pkg/resource"
)

// Dynamic splits its input into one generated .number resource per line.
// The generated resources are spawned and built by the Number builder.
type Dynamic struct{}

func (Dynamic) Params() graph.Params {
	return graph.Params{Name: "Dynamic", InExts: []string{".dynamic"}, OutExt: ".number"}
}

func (b Dynamic) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	data, err := input.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", input.Path(), err)
	}

	task := graph.NewTask(b).AddInput(input)
	base := resource.ChangeExt(input.Path(), "")
	for i := range lines(data) {
		generated := cc.FS().Get(fmt.Sprintf("%s_generated_%d%s", base, i, b.Params().OutExt)).Output()
		task.AddOutput(generated).Spawn(generated)
	}
	return task, nil
}

func (Dynamic) Build(ctx context.Context, task *graph.Task) error {
	data, err := task.Input(0).Content()
	if err != nil {
		return err
	}
	values := lines(data)
	if len(values) != len(task.Outputs()) {
		return graph.NewCompileError(task.Input(0), 0, "expected %d lines, found %d", len(task.Outputs()), len(values))
	}
	for i, v := range values {
		if err := task.Output(i).SetContent([]byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// lines returns the non-empty trimmed lines of data
func lines(data []byte) []string {
	var out []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
