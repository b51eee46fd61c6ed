package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbs/pkg/builtin"
	"cbs/pkg/graph"
	"cbs/pkg/registry"
	"cbs/pkg/resource"
)

func newRegistry(t *testing.T, extra ...graph.Builder) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Install(builtin.Module))
	require.NoError(t, r.Register(extra...))
	return r
}

func outputs(tasks []*graph.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.ID())
	}
	return out
}

// failingBuilder fails its create step
type failingBuilder struct{}

func (failingBuilder) Params() graph.Params {
	return graph.Params{Name: "Failing", InExts: []string{".fail"}, OutExt: ".failc"}
}

func (failingBuilder) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return nil, fmt.Errorf("cannot parse")
}

func (failingBuilder) Build(ctx context.Context, task *graph.Task) error { return nil }

// clashBuilder maps .clash to .out, the output extension of Copy
type clashBuilder struct{}

func (clashBuilder) Params() graph.Params {
	return graph.Params{Name: "Clash", InExts: []string{".clash"}, OutExt: ".out"}
}

func (b clashBuilder) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(b, input), nil
}

func (clashBuilder) Build(ctx context.Context, task *graph.Task) error { return nil }

// loopBuilder consumes its own output
type loopBuilder struct{}

func (loopBuilder) Params() graph.Params {
	return graph.Params{Name: "Loop", InExts: []string{".loop"}, OutExt: ".loopc"}
}

func (b loopBuilder) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	out := graph.OutputFor(b, input)
	return graph.NewTask(b).AddInput(input, out).AddOutput(out), nil
}

func (loopBuilder) Build(ctx context.Context, task *graph.Task) error { return nil }

func TestPlan_CreatesTasks(t *testing.T) {
	fs := resource.NewMemFS("build")
	fs.AddFile("test.in", "test data")
	fs.AddFile("notes.txt", "no builder")

	result, err := Plan(context.Background(), Request{
		FS:       fs,
		Registry: newRegistry(t),
		Inputs:   []string{"test.in", "notes.txt", "/test.in"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"build/test.out"}, outputs(result.Tasks))
	assert.Equal(t, 1, result.Graph.Len())
	assert.NotNil(t, result.Tasks[0].Options())
}

func TestPlan_DynamicTasks(t *testing.T) {
	fs := resource.NewMemFS("build")
	fs.AddFile("test.dynamic", "1\n2\n")

	result, err := Plan(context.Background(), Request{
		FS:       fs,
		Registry: newRegistry(t),
		Inputs:   []string{"test.dynamic"},
	})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 3)

	generator := result.Tasks[0]
	assert.Nil(t, generator.GeneratedBy())
	for _, child := range result.Tasks[1:] {
		assert.Same(t, generator, child.GeneratedBy())
		assert.Equal(t, "Number", child.Builder().Params().Name)
	}
	assert.Equal(t, []string{
		"build/test_generated_0.number,build/test_generated_1.number",
		"build/test_generated_0.numberc",
		"build/test_generated_1.numberc",
	}, outputs(result.Tasks))

	sorted, err := result.Graph.TopologicalSort()
	require.NoError(t, err)
	assert.Same(t, generator, sorted[0])
}

func TestPlan_CreateOrder(t *testing.T) {
	fs := resource.NewMemFS("build")
	fs.AddFile("game.manifest", "")
	fs.AddFile("a.in", "a")
	fs.AddFile("b.dynamic", "1\n")

	result, err := Plan(context.Background(), Request{
		FS:       fs,
		Registry: newRegistry(t),
		Inputs:   []string{"game.manifest", "a.in", "b.dynamic"},
	})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 4)

	manifest := result.Tasks[3]
	assert.Equal(t, "Manifest", manifest.Builder().Params().Name)
	assert.Equal(t, []string{
		"game.manifest",
		"build/a.out",
		"build/b_generated_0.number",
		"build/b_generated_0.numberc",
	}, manifest.InputPaths())
}

func TestPlan_Exclusion(t *testing.T) {
	fs := resource.NewMemFS("build")
	fs.AddFile("keep/a.in", "a")
	fs.AddFile("skip/b.in", "b")
	fs.AddFile("ignored/c.in", "c")
	fs.AddFile(IgnoreFile, "# folders\n/ignored\n\n")

	result, err := Plan(context.Background(), Request{
		FS:       fs,
		Registry: newRegistry(t),
		Inputs:   []string{"keep/a.in", "skip/b.in", "ignored/c.in"},
		Options:  graph.Options{ExcludeOption: "/skip"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"build/keep/a.out"}, outputs(result.Tasks))
	assert.Equal(t, []string{"skip/b.in", "ignored/c.in"}, result.Excluded)
}

func TestPlan_Errors(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "create failure",
			inputs: []string{"x.fail"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "create task for x.fail with Failing: cannot parse")
			},
		},
		{
			name:   "conflicting output",
			inputs: []string{"a.in", "a.clash"},
			check: func(t *testing.T, err error) {
				var conflict *graph.ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, "build/a.out", conflict.Output)
				assert.Equal(t, "Copy", conflict.First.Builder().Params().Name)
				assert.Equal(t, "Clash", conflict.Second.Builder().Params().Name)
			},
		},
		{
			name:   "cycle",
			inputs: []string{"x.loop"},
			check: func(t *testing.T, err error) {
				var cycle *graph.CycleError
				assert.True(t, errors.As(err, &cycle), "expected cycle error, got %v", err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := resource.NewMemFS("build")
			for _, in := range tt.inputs {
				fs.AddFile(in, "x")
			}
			result, err := Plan(context.Background(), Request{
				FS:       fs,
				Registry: newRegistry(t, failingBuilder{}, clashBuilder{}, loopBuilder{}),
				Inputs:   tt.inputs,
			})
			require.Error(t, err)
			assert.Nil(t, result)
			tt.check(t, err)
		})
	}
}

func TestPlan_Canceled(t *testing.T) {
	fs := resource.NewMemFS("build")
	fs.AddFile("a.in", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Plan(ctx, Request{FS: fs, Registry: newRegistry(t), Inputs: []string{"a.in"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindSources(t *testing.T) {
	fs := resource.NewMemFS("build")
	fs.AddFile("main/a.in", "")
	fs.AddFile("main/.hidden", "")
	fs.AddFile("main/sub/b.script", "")
	fs.AddFile(".git/config", "")
	fs.AddFile("build/main/a.out", "")
	fs.AddFile("node_modules/x/y.in", "")
	fs.AddFile("assets/raw/c.in", "")
	fs.AddFile("assets/d.in", "")

	sources, err := FindSources(fs, "", []string{"assets/raw"})
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/d.in", "main/a.in", "main/sub/b.script"}, sources)

	sources, err = FindSources(fs, "main", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"main/a.in", "main/sub/b.script"}, sources)
}
