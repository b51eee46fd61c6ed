package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbs/pkg/graph"
	"cbs/pkg/resource"
)

type stubBuilder struct {
	params graph.Params
}

func (s stubBuilder) Params() graph.Params { return s.params }

func (s stubBuilder) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(s, input), nil
}

func (s stubBuilder) Build(ctx context.Context, task *graph.Task) error { return nil }

func stub(name, outExt string, exts ...string) stubBuilder {
	return stubBuilder{params: graph.Params{Name: name, InExts: exts, OutExt: outExt}}
}

type module []graph.Builder

func (m module) Register(r *Registry) error { return r.Register(m...) }

func TestRegistry_Match(t *testing.T) {
	r := New()
	lua := stub("Lua", ".luac", ".lua")
	script := stubBuilder{params: lua.params.Extend("Script", ".scriptc", ".script", ".gui_script")}
	require.NoError(t, r.Register(lua, script))

	assert.Equal(t, []graph.Builder{lua, script}, r.Match("main/a.lua"))
	assert.Equal(t, []graph.Builder{script}, r.Match("main/a.gui_script"))
	assert.Empty(t, r.Match("main/a.txt"))
	assert.Empty(t, r.Match("Makefile"))

	b, ok := r.Lookup("Script")
	require.True(t, ok)
	assert.Equal(t, script, b)
	assert.Equal(t, []string{".gui_script", ".lua", ".script"}, r.Extensions())
	assert.Len(t, r.Builders(), 2)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder graph.Builder
	}{
		{"duplicate name", stub("Copy", ".out", ".other")},
		{"empty name", stub("", ".out", ".x")},
		{"no extensions", stub("None", ".out")},
		{"missing dot", stub("Dotless", ".out", "in")},
		{"bad output", stub("BadOut", "out", ".y")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			require.NoError(t, r.Register(stub("Copy", ".out", ".in")))
			assert.Error(t, r.Register(tt.builder))
		})
	}
}

func TestRegistry_Install(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(module{stub("A", ".a2", ".a")}, module{stub("B", ".b2", ".b")}))
	assert.Len(t, r.Builders(), 2)

	assert.Error(t, r.Install(module{stub("A", ".a2", ".a")}))
	assert.Panics(t, func() { r.MustRegister(stub("B", ".b2", ".b")) })
}
