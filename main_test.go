package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"cbs/pkg/builtin"
	"cbs/pkg/ctxlog"
	"cbs/pkg/graph"
	"cbs/pkg/resource"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func openTestSession(t *testing.T) (*session, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "cbs.hcl", `
build_dir = "out"
exclude   = ["skip"]
options   = { OPTIM = "-O1" }
`)
	writeFile(t, root, "a.in", "a")
	writeFile(t, root, "lib/b.c", "int b;")
	writeFile(t, root, "skip/c.in", "c")
	writeFile(t, root, "notes.txt", "no builder")

	cli := &CLI{Root: root, CacheSize: 16, Option: map[string]string{"extra": "1"}}
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	s, err := cli.open(ctx, sessionOptions{})
	require.NoError(t, err)
	t.Cleanup(s.project.Dispose)
	return s, root
}

func TestOpen(t *testing.T) {
	s, _ := openTestSession(t)

	assert.Equal(t, "out", s.fs.BuildDirectory())
	assert.Equal(t, []string{"a.in", "lib/b.c"}, s.project.Inputs())
	assert.Equal(t, "-O1", s.project.Option(builtin.OptimizationOption, ""))
	assert.Equal(t, "1", s.project.Option("extra", ""))
}

func TestOutputCache(t *testing.T) {
	for _, size := range []int{0, -1} {
		c, err := (&CLI{CacheSize: size}).outputCache()
		require.NoError(t, err)
		assert.Nil(t, c, "size %d disables the cache", size)
	}

	c, err := (&CLI{CacheSize: 8}).outputCache()
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestOpen_WithoutCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.in", "a")

	cli := &CLI{Root: root}
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	s, err := cli.open(ctx, sessionOptions{})
	require.NoError(t, err)
	defer s.project.Dispose()

	results, err := s.project.BuildAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPrintPlanYAML(t *testing.T) {
	s, _ := openTestSession(t)
	result, err := s.project.Plan(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printPlanYAML(&buf, s, result))

	var doc planDoc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "out", doc.BuildDir)
	require.Len(t, doc.Tasks, 2)
	assert.Equal(t, "Copy a.in", doc.Tasks[0].Name)
	assert.Equal(t, []string{"out/a.out"}, doc.Tasks[0].Outputs)
	assert.Equal(t, "Compile", doc.Tasks[1].Builder)
}

func TestBuildAndReport(t *testing.T) {
	s, root := openTestSession(t)

	results, err := s.project.Build(context.Background(), nil)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, report(&out, results))
	assert.Contains(t, out.String(), "Built 2 task(s)")

	data, err := os.ReadFile(filepath.Join(root, "out", "lib", "b.o"))
	require.NoError(t, err)
	assert.Equal(t, "; lib/b.c -O1\nint b;", string(data))

	out.Reset()
	require.NoError(t, report(&out, nil))
	assert.Contains(t, out.String(), "up to date")
}

func TestReport_Failures(t *testing.T) {
	fs := resource.NewMemFS("build")
	task := graph.DefaultTask(builtin.Number{}, fs.Get("bad.number"))
	results := []graph.TaskResult{{
		Task:        task,
		Diagnostics: []graph.Diagnostic{{Resource: "bad.number", Line: 1, Message: `invalid number "x"`}},
	}}

	var out bytes.Buffer
	err := report(&out, results)
	var failed *graph.MultipleCompileError
	require.True(t, errors.As(err, &failed))
	assert.Contains(t, out.String(), "1 of 1 task(s) failed")
	assert.Contains(t, out.String(), `bad.number:1: invalid number "x"`)
}

func TestTaskDisplay(t *testing.T) {
	fs := resource.NewMemFS("build")
	task := graph.DefaultTask(builtin.Copy{}, fs.Get("a.in"))

	var out bytes.Buffer
	d := newTaskDisplay(&out, 4)
	d.update(task, graph.StatusRunning, false, false)
	assert.Empty(t, out.String(), "running tasks are not shown with several workers")

	d.update(task, graph.StatusFailed, true, false)
	assert.Contains(t, out.String(), "✗")
	assert.Contains(t, out.String(), "Copy a.in")

	out.Reset()
	d.update(task, graph.StatusCompleted, true, true)
	assert.Contains(t, out.String(), "↻")
}

func TestIgnored(t *testing.T) {
	s, root := openTestSession(t)
	s.project.SetOption("build-report", "report.json")

	tests := []struct {
		name    string
		ignored bool
	}{
		{"a.in", false},
		{"lib/new.c", false},
		{".buildignore", false},
		{"out/a.out", true},
		{".git/HEAD", true},
		{"lib/.swp", true},
		{"skip/c.in", true},
		{"report.json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ignored := s.ignored(filepath.Join(root, filepath.FromSlash(tt.name)))
			assert.Equal(t, tt.ignored, ignored)
			assert.Equal(t, tt.name, rel)
		})
	}
}
