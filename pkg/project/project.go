// Package project is the entry point of the build engine. A Project owns the
// builder registry, the build options, the root inputs and the signature
// state that makes repeated builds incremental.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pborman/uuid"

	"cbs/pkg/cache"
	"cbs/pkg/ctxlog"
	"cbs/pkg/graph"
	"cbs/pkg/metrics"
	"cbs/pkg/planner"
	"cbs/pkg/progress"
	"cbs/pkg/registry"
	"cbs/pkg/resource"
	"cbs/pkg/signature"
)

// Build phases
const (
	PhaseClean     = "clean"
	PhaseDistclean = "distclean"
	PhaseBuild     = "build"
)

// ReportOption is the path of the JSON report written after the build phase
const ReportOption = "build-report"

// ErrDisposed is returned by every build after Dispose
var ErrDisposed = errors.New("project disposed")

// Config configures a new project
type Config struct {
	FS       resource.FileSystem
	Registry *registry.Registry
	// Workers > 1 builds independent tasks concurrently
	Workers int
	// Logger defaults to the logger of the build context
	Logger *slog.Logger
	// Cache restores lost outputs without running builders
	Cache cache.Cache
	// Metrics records builds and tasks
	Metrics *metrics.Metrics
	// OnProgress is notified about every attempted task
	OnProgress graph.ProgressCallback
}

// Project is one build session
type Project struct {
	mu sync.Mutex

	cfg     Config
	session string
	options graph.Options
	inputs  []string
	state   *signature.State
	plan    *planner.PlanResult

	disposed bool
}

// New creates a project session
func New(cfg Config) *Project {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	return &Project{
		cfg:     cfg,
		session: uuid.New(),
		options: graph.Options{},
		state:   signature.NewState(),
	}
}

// Session returns the unique id of the session
func (p *Project) Session() string {
	return p.session
}

// FS returns the file system of the project
func (p *Project) FS() resource.FileSystem {
	return p.cfg.FS
}

// Registry returns the builder registry
func (p *Project) Registry() *registry.Registry {
	return p.cfg.Registry
}

// SetInputs replaces the root inputs
func (p *Project) SetInputs(inputs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append([]string(nil), inputs...)
}

// Inputs returns the root inputs
func (p *Project) Inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inputs...)
}

// FindSources scans root and sets every file with a matching builder as input
func (p *Project) FindSources(root string, skipDirs []string) error {
	sources, err := planner.FindSources(p.cfg.FS, root, skipDirs)
	if err != nil {
		return err
	}
	inputs := sources[:0]
	for _, s := range sources {
		if len(p.cfg.Registry.Match(s)) > 0 {
			inputs = append(inputs, s)
		}
	}
	p.SetInputs(inputs)
	return nil
}

// SetOption sets a build option
func (p *Project) SetOption(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options[key] = value
}

// Option returns a build option or def
func (p *Project) Option(key, def string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options.Option(key, def)
}

// Options returns a copy of the build options
func (p *Project) Options() graph.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options.Clone()
}

// State returns the signature state of the session
func (p *Project) State() *signature.State {
	return p.state
}

// Graph returns the task graph of the most recent build, or nil
func (p *Project) Graph() *graph.Graph {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plan == nil {
		return nil
	}
	return p.plan.Graph
}

// Plan constructs the task graph for the current inputs without building
func (p *Project) Plan(ctx context.Context) (*planner.PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, ErrDisposed
	}
	return p.planLocked(p.withLogger(ctx))
}

// Build runs the given phases in order. Without phases only the build phase
// runs. It returns the results of the tasks attempted by the build phase.
// Compile errors are reported in the results only. Any other error aborts the
// call and no results are returned, except on cancellation where the results
// gathered so far are returned with progress.ErrCanceled.
func (p *Project) Build(ctx context.Context, prog progress.Progress, phases ...string) ([]graph.TaskResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return nil, ErrDisposed
	}
	if len(phases) == 0 {
		phases = []string{PhaseBuild}
	}
	for _, phase := range phases {
		switch phase {
		case PhaseClean, PhaseDistclean, PhaseBuild:
		default:
			return nil, fmt.Errorf("unknown phase %q", phase)
		}
	}
	if prog == nil {
		prog = progress.Null{}
	}

	ctx = p.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)

	var results []graph.TaskResult
	for _, phase := range phases {
		if prog.Canceled() || ctx.Err() != nil {
			return results, progress.ErrCanceled
		}
		logger.Info("Running phase", "phase", phase)

		switch phase {
		case PhaseClean:
			if err := p.clean(ctx, prog); err != nil {
				return nil, err
			}
		case PhaseDistclean:
			if err := p.distclean(prog); err != nil {
				return nil, err
			}
		case PhaseBuild:
			var err error
			results, err = p.build(ctx, prog)
			p.cfg.Metrics.ObserveBuild(err)
			if err != nil {
				return results, err
			}
			if graph.Failures(results) != nil {
				logger.Warn("Build failed, skipping remaining phases")
				return results, nil
			}
		}
	}
	return results, nil
}

// BuildAll runs the build phase and returns a *graph.MultipleCompileError
// bundling every failed task
func (p *Project) BuildAll(ctx context.Context, prog progress.Progress) ([]graph.TaskResult, error) {
	results, err := p.Build(ctx, prog, PhaseBuild)
	if err != nil {
		return results, err
	}
	return results, graph.Failures(results)
}

// Dispose releases the state of the session. Later builds fail with
// ErrDisposed.
func (p *Project) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
	p.state.Clear()
	p.plan = nil
	p.inputs = nil
}

func (p *Project) withLogger(ctx context.Context) context.Context {
	logger := p.cfg.Logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	return ctxlog.WithLogger(ctx, logger.With("session", p.session))
}

func (p *Project) planLocked(ctx context.Context) (*planner.PlanResult, error) {
	return planner.Plan(ctx, planner.Request{
		FS:       p.cfg.FS,
		Registry: p.cfg.Registry,
		Inputs:   p.inputs,
		Options:  p.options.Clone(),
	})
}

func (p *Project) build(ctx context.Context, prog progress.Progress) ([]graph.TaskResult, error) {
	plan, err := p.planLocked(ctx)
	if err != nil {
		return nil, err
	}
	p.plan = plan

	runner := graph.NewRunner(p.state)
	runner.Options = p.options.Clone()
	runner.Workers = p.cfg.Workers
	runner.Cache = p.cfg.Cache
	runner.Metrics = p.cfg.Metrics
	runner.OnProgress = p.cfg.OnProgress

	results, err := runner.Execute(ctx, plan.Graph, prog)
	if err != nil {
		return results, err
	}

	if p.options.Has(ReportOption) {
		if err := p.writeReport(p.options.Option(ReportOption, ""), plan, results); err != nil {
			return nil, err
		}
	}

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	ctxlog.FromContext(ctx).Info("Build finished", "tasks", plan.Graph.Len(), "attempted", len(results), "failed", failed)
	return results, nil
}

// clean removes the outputs of every planned task and every recorded output
// together with their signatures
func (p *Project) clean(ctx context.Context, prog progress.Progress) error {
	plan, err := p.planLocked(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	var paths []string
	for _, task := range plan.Tasks {
		for _, path := range task.OutputPaths() {
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}
	for _, path := range p.state.Paths() {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	prog.BeginTask("Cleaning", len(paths))
	defer prog.Done()

	for _, path := range paths {
		if prog.Canceled() || ctx.Err() != nil {
			return progress.ErrCanceled
		}
		if err := p.cfg.FS.Get(path).Remove(); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		p.state.Remove(path)
		prog.Worked(1)
	}
	p.state.ClearTasks()
	ctxlog.FromContext(ctx).Info("Removed outputs", "count", len(paths))
	return nil
}

// distclean deletes the build directory and forgets every signature
func (p *Project) distclean(prog progress.Progress) error {
	prog.BeginTask("Cleaning", 1)
	defer prog.Done()

	if err := p.cfg.FS.RemoveAll(p.cfg.FS.BuildDirectory()); err != nil {
		return fmt.Errorf("failed to remove build directory: %w", err)
	}
	p.state.Clear()
	prog.Worked(1)
	return nil
}
