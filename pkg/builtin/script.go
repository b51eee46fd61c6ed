package builtin

import (
	"bytes"
	"context"
	"strings"

	"cbs/pkg/graph"
	"cbs/pkg/resource"
)

// luaParams is the base descriptor that script builders extend
var luaParams = graph.Params{Name: "Lua", InExts: []string{".lua"}, OutExt: ".luac"}

// Script strips comment lines from Lua sources and script components. It
// accepts the Lua extensions as well as its own.
type Script struct{}

func (Script) Params() graph.Params {
	return luaParams.Extend("Script", ".scriptc", ".script", ".gui_script")
}

func (b Script) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(b, input), nil
}

func (Script) Build(ctx context.Context, task *graph.Task) error {
	data, err := task.Input(0).Content()
	if err != nil {
		return err
	}

	var out bytes.Buffer
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.Count(trimmed, `"`)%2 != 0 {
			return graph.NewCompileError(task.Input(0), i+1, "unfinished string")
		}
		if trimmed == "" {
			continue
		}
		out.WriteString(trimmed)
		out.WriteByte('\n')
	}
	return task.Output(0).SetContent(out.Bytes())
}
