// Package planner turns a set of root resources into a task graph by
// invoking the create step of the matching builders. Builders may spawn
// further resources during creation; those are routed back through builder
// matching and linked to the task that spawned them.
package planner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"cbs/pkg/ctxlog"
	"cbs/pkg/graph"
	"cbs/pkg/registry"
	"cbs/pkg/resource"
)

// IgnoreFile lists folder prefixes excluded from the build, one per line
const IgnoreFile = ".buildignore"

// ExcludeOption is the comma separated list of excluded folder prefixes
const ExcludeOption = "exclude-build-folder"

// Request is the input of Plan
type Request struct {
	FS       resource.FileSystem
	Registry *registry.Registry
	Inputs   []string
	Options  graph.Options
}

// PlanResult is the constructed task graph
type PlanResult struct {
	// Graph contains every created task
	Graph *graph.Graph
	// Tasks lists the tasks in creation order
	Tasks []*graph.Task
	// Excluded lists root inputs skipped by exclusion rules
	Excluded []string
}

type job struct {
	input   resource.Resource
	builder graph.Builder
	parent  *graph.Task
}

type planner struct {
	req   Request
	graph *graph.Graph
	tasks []*graph.Task
	memo  map[string]*graph.Task // "<input path> <builder name>" -> task
}

func (p *planner) FS() resource.FileSystem { return p.req.FS }
func (p *planner) Options() graph.Options  { return p.req.Options }

func (p *planner) Tasks() []*graph.Task {
	return append([]*graph.Task(nil), p.tasks...)
}

// Plan creates the tasks for every root input that has a matching builder.
// Roots are processed in creation order of their builders, so a builder with
// a high creation order sees the tasks of all others. Any error is fatal:
// create-step failures, conflicting outputs and cycles.
func Plan(ctx context.Context, req Request) (*PlanResult, error) {
	logger := ctxlog.FromContext(ctx)
	if req.Options == nil {
		req.Options = graph.Options{}
	}

	excludes, err := excludedFolders(req.FS, req.Options)
	if err != nil {
		return nil, err
	}

	p := &planner{
		req:   req,
		graph: graph.NewGraph(),
		memo:  make(map[string]*graph.Task),
	}

	var roots []job
	var excluded []string
	seen := make(map[string]bool)
	for _, in := range req.Inputs {
		in = resource.Clean(in)
		if seen[in] {
			continue
		}
		seen[in] = true
		if isExcluded(in, excludes) {
			excluded = append(excluded, in)
			continue
		}
		builders := req.Registry.Match(in)
		if len(builders) == 0 {
			logger.Debug("No builder for input", "input", in)
			continue
		}
		for _, b := range builders {
			roots = append(roots, job{input: req.FS.Get(in), builder: b})
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].builder.Params().CreateOrder < roots[j].builder.Params().CreateOrder
	})

	for _, root := range roots {
		if err := p.drain(ctx, root); err != nil {
			return nil, err
		}
	}

	if _, err := p.graph.TopologicalSort(); err != nil {
		return nil, err
	}

	logger.Debug("Planned build", "tasks", len(p.tasks), "excluded", len(excluded))
	return &PlanResult{Graph: p.graph, Tasks: p.tasks, Excluded: excluded}, nil
}

// drain creates the task of root and, breadth first, the tasks of every
// resource spawned on the way
func (p *planner) drain(ctx context.Context, root job) error {
	queue := []job{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		j := queue[0]
		queue = queue[1:]

		task, created, err := p.createTask(j)
		if err != nil {
			return err
		}
		if !created {
			continue
		}

		for _, r := range task.Spawned() {
			builders := p.req.Registry.Match(r.Path())
			if len(builders) == 0 {
				ctxlog.FromContext(ctx).Warn("No builder for spawned resource", "resource", r.Path(), "task", task.Name())
				continue
			}
			for _, b := range builders {
				queue = append(queue, job{input: r, builder: b, parent: task})
			}
		}
	}
	return nil
}

// createTask returns the task for (input, builder), creating it once. The
// second return value is true when the task was created by this call.
func (p *planner) createTask(j job) (*graph.Task, bool, error) {
	name := j.builder.Params().Name
	key := j.input.Path() + " " + name
	if t, ok := p.memo[key]; ok {
		return t, false, nil
	}

	task, err := j.builder.Create(p, j.input)
	if err != nil {
		return nil, false, fmt.Errorf("create task for %s with %s: %w", j.input.Path(), name, err)
	}
	if task == nil {
		return nil, false, nil
	}
	task.SetOptions(p.req.Options)
	if j.parent != nil {
		task.SetGeneratedBy(j.parent)
	}

	if err := p.graph.AddTask(task); err != nil {
		return nil, false, err
	}
	p.memo[key] = task
	p.tasks = append(p.tasks, task)
	return task, true, nil
}

// excludedFolders combines the exclude option with the ignore file. A
// leading "/" is removed from every entry.
func excludedFolders(fs resource.FileSystem, opts graph.Options) ([]string, error) {
	folders := opts.List(ExcludeOption)

	data, err := fs.Get(IgnoreFile).Content()
	if err != nil && !resource.IsNotExist(err) {
		return nil, fmt.Errorf("unable to read %s: %w", IgnoreFile, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			folders = append(folders, line)
		}
	}

	for i, f := range folders {
		folders[i] = strings.TrimPrefix(f, "/")
	}
	return folders, nil
}

func isExcluded(input string, folders []string) bool {
	for _, f := range folders {
		if f != "" && strings.HasPrefix(input, f) {
			return true
		}
	}
	return false
}
