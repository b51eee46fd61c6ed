package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cbs/pkg/cache"
	"cbs/pkg/ctxlog"
	"cbs/pkg/metrics"
	"cbs/pkg/progress"
	"cbs/pkg/resource"
	"cbs/pkg/signature"
)

// Task status values passed to the progress callback
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProgressCallback is called when task execution status changes
type ProgressCallback func(task *Task, status string, finished bool, cached bool)

// Runner executes the tasks of a graph, skipping those whose signature
// matches the last successful attempt
type Runner struct {
	state *signature.State

	// Options are folded into signatures of builders implementing SignatureSource
	Options Options
	// Workers > 1 runs independent tasks concurrently
	Workers int
	// Cache restores outputs of cacheable tasks instead of building them
	Cache cache.Cache
	// Metrics records attempted tasks
	Metrics *metrics.Metrics
	// OnProgress is notified before and after every attempted task
	OnProgress ProgressCallback
}

// NewRunner creates a runner that records signatures in state
func NewRunner(state *signature.State) *Runner {
	return &Runner{state: state, Workers: 1}
}

// outcome of a single task
type outcome int

const (
	outcomeSkipped outcome = iota // up to date
	outcomeBuilt                  // attempted, result is recorded
	outcomeBlocked                // an input producer failed
)

// execution is the state of one Execute call
type execution struct {
	graph *Graph

	mu      sync.Mutex
	digests map[string]uint64 // output path -> digest of just-produced content
	failed  map[*Task]bool    // failed or blocked tasks
}

func (e *execution) digest(path string) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.digests[path]
	return d, ok
}

func (e *execution) setDigest(path string, d uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.digests[path] = d
}

func (e *execution) markFailed(t *Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed[t] = true
}

func (e *execution) blocked(t *Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range e.graph.Dependencies(t) {
		if e.failed[dep] {
			return true
		}
	}
	return false
}

// Execute runs every task of the graph that is not up to date. It returns the
// results of attempted tasks only. A task whose input producer failed is not
// attempted. Any error that is not a *CompileError aborts the build and
// discards the results. On cancellation the results gathered so far are
// returned together with progress.ErrCanceled.
func (r *Runner) Execute(ctx context.Context, g *Graph, prog progress.Progress) ([]TaskResult, error) {
	if prog == nil {
		prog = progress.Null{}
	}

	ordered, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to sort tasks: %w", err)
	}

	exec := &execution{
		graph:   g,
		digests: make(map[string]uint64),
		failed:  make(map[*Task]bool),
	}

	prog.BeginTask("Building", len(ordered))
	defer prog.Done()

	if r.Workers <= 1 {
		return r.executeSequential(ctx, exec, ordered, prog)
	}
	return r.executeParallel(ctx, exec, ordered, prog)
}

func canceled(ctx context.Context, prog progress.Progress) bool {
	return prog.Canceled() || ctx.Err() != nil
}

// executeSequential runs tasks one at a time in topological order
func (r *Runner) executeSequential(ctx context.Context, exec *execution, ordered []*Task, prog progress.Progress) ([]TaskResult, error) {
	results := make([]TaskResult, 0)

	for _, task := range ordered {
		if canceled(ctx, prog) {
			return results, progress.ErrCanceled
		}

		result, out, err := r.executeTask(ctx, exec, task)
		if err != nil {
			if ctx.Err() != nil {
				return results, progress.ErrCanceled
			}
			return nil, err
		}
		if out == outcomeBuilt {
			results = append(results, result)
		}
		prog.Worked(1)
	}

	return results, nil
}

type taskDone struct {
	task   *Task
	result TaskResult
	out    outcome
	err    error
}

// executeParallel dispatches ready tasks to at most r.Workers goroutines
func (r *Runner) executeParallel(ctx context.Context, exec *execution, ordered []*Task, prog progress.Progress) ([]TaskResult, error) {
	inDegree := make(map[*Task]int, len(ordered))
	dependents := make(map[*Task][]*Task, len(ordered))
	for _, task := range ordered {
		deps := exec.graph.Dependencies(task)
		inDegree[task] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], task)
		}
	}

	var ready []*Task
	for _, task := range ordered {
		if inDegree[task] == 0 {
			ready = append(ready, task)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	done := make(chan taskDone, len(ordered))

	results := make([]TaskResult, 0)
	var fatal error
	running, completed := 0, 0
	stopped := false

	for completed < len(ordered) {
		for len(ready) > 0 && running < r.Workers && !stopped {
			if canceled(ctx, prog) {
				stopped = true
				break
			}
			task := ready[0]
			ready = ready[1:]
			running++
			eg.Go(func() error {
				result, out, err := r.executeTask(egCtx, exec, task)
				done <- taskDone{task: task, result: result, out: out, err: err}
				return err
			})
		}
		if running == 0 {
			break
		}

		d := <-done
		running--
		completed++

		if d.err != nil {
			stopped = true
			if fatal == nil {
				fatal = d.err
			}
			continue
		}
		if d.out == outcomeBuilt {
			results = append(results, d.result)
		}
		prog.Worked(1)

		for _, next := range dependents[d.task] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	waitErr := eg.Wait()
	if fatal != nil || waitErr != nil {
		if ctx.Err() != nil || prog.Canceled() {
			return results, progress.ErrCanceled
		}
		if fatal == nil {
			fatal = waitErr
		}
		return nil, fatal
	}
	if stopped {
		return results, progress.ErrCanceled
	}
	return results, nil
}

// executeTask decides whether task must be rebuilt and builds it
func (r *Runner) executeTask(ctx context.Context, exec *execution, task *Task) (TaskResult, outcome, error) {
	logger := ctxlog.FromContext(ctx).With("task", task.Name())
	name := task.Builder().Params().Name

	if exec.blocked(task) {
		exec.markFailed(task)
		logger.Debug("Task not attempted, an input producer failed")
		return TaskResult{}, outcomeBlocked, nil
	}

	sig, missing, err := r.signature(exec, task)
	if err != nil {
		return TaskResult{}, outcomeSkipped, fmt.Errorf("failed to compute signature of %s: %w", task.Name(), err)
	}
	if missing != nil {
		// A missing source input fails the task before the builder runs
		r.record(task, sig, false)
		exec.markFailed(task)
		r.Metrics.ObserveTask(name, metrics.OutcomeFailed, 0)
		r.notify(task, StatusFailed, true, false)
		return TaskResult{
			Task:        task,
			Diagnostics: []Diagnostic{{Resource: missing.Path(), Message: fmt.Sprintf("Input '%s' not found", missing.Path())}},
		}, outcomeBuilt, nil
	}

	if r.upToDate(task, sig) {
		logger.Debug("Task up to date", "signature", sig.String())
		return TaskResult{}, outcomeSkipped, nil
	}

	if r.restore(task, sig) {
		r.record(task, sig, true)
		if err := r.recordDigests(exec, task); err != nil {
			return TaskResult{}, outcomeSkipped, err
		}
		logger.Debug("Task restored from cache")
		r.Metrics.ObserveTask(name, metrics.OutcomeCached, 0)
		r.notify(task, StatusCompleted, true, true)
		return TaskResult{Task: task, OK: true, Cached: true}, outcomeBuilt, nil
	}

	r.notify(task, StatusRunning, false, false)
	start := time.Now()
	buildErr := task.Builder().Build(ctx, task)
	elapsed := time.Since(start)

	result := TaskResult{Task: task, OK: true}
	var compileErr *CompileError
	switch {
	case buildErr == nil:
		for _, out := range task.Outputs() {
			if !out.Exists() {
				result.OK = false
				result.Diagnostics = append(result.Diagnostics, Diagnostic{
					Resource: out.Path(),
					Message:  fmt.Sprintf("Output '%s' not found", out.Path()),
				})
			}
		}
	case errors.As(buildErr, &compileErr):
		result.OK = false
		result.Diagnostics = append(result.Diagnostics, compileErr.Diagnostic())
	default:
		r.record(task, sig, false)
		return TaskResult{}, outcomeSkipped, fmt.Errorf("failed to build %s: %w", task.Name(), buildErr)
	}

	if !result.OK {
		r.record(task, sig, false)
		exec.markFailed(task)
		logger.Warn("Task failed", "diagnostics", len(result.Diagnostics))
		r.Metrics.ObserveTask(name, metrics.OutcomeFailed, elapsed)
		r.notify(task, StatusFailed, true, false)
		return result, outcomeBuilt, nil
	}

	if err := r.recordDigests(exec, task); err != nil {
		return TaskResult{}, outcomeSkipped, err
	}
	r.record(task, sig, true)
	r.store(task, sig)
	logger.Debug("Task built", "duration", elapsed)
	r.Metrics.ObserveTask(name, metrics.OutcomeOK, elapsed)
	r.notify(task, StatusCompleted, true, false)
	return result, outcomeBuilt, nil
}

// upToDate reports whether task can be skipped. A task without outputs is
// up to date after a successful attempt with the same signature.
func (r *Runner) upToDate(task *Task, sig signature.Signature) bool {
	if len(task.Outputs()) == 0 {
		return r.state.TaskUpToDate(task.Name(), sig)
	}
	return r.state.UpToDate(task.OutputPaths(), sig) && outputsExist(task)
}

// record stores the outcome of an attempt for every output of task
func (r *Runner) record(task *Task, sig signature.Signature, ok bool) {
	if len(task.Outputs()) == 0 {
		r.state.PutTask(task.Name(), sig, ok)
		return
	}
	r.state.Put(task.OutputPaths(), sig, ok)
}

// signature computes the task signature. Inputs produced by another task use
// the digest recorded when that task completed in this execution. A source
// input that does not exist is returned as missing.
func (r *Runner) signature(exec *execution, task *Task) (signature.Signature, resource.Resource, error) {
	var missing resource.Resource
	digest := func(in resource.Resource) (uint64, error) {
		if d, ok := exec.digest(in.Path()); ok {
			return d, nil
		}
		data, err := in.Content()
		if err != nil {
			if resource.IsNotExist(err) {
				if missing == nil {
					missing = in
				}
				return 0, nil
			}
			return 0, err
		}
		return signature.Digest(data), nil
	}

	sig, err := ComputeSignature(task, r.Options, digest)
	if err != nil {
		return signature.Signature{}, nil, err
	}
	return sig, missing, nil
}

func (r *Runner) recordDigests(exec *execution, task *Task) error {
	for _, out := range task.Outputs() {
		data, err := out.Content()
		if err != nil {
			return fmt.Errorf("failed to read output %s: %w", out.Path(), err)
		}
		exec.setDigest(out.Path(), signature.Digest(data))
	}
	return nil
}

// restore writes every output of task from the cache. It reports false
// unless all outputs were found.
func (r *Runner) restore(task *Task, sig signature.Signature) bool {
	if r.Cache == nil || !task.Cacheable() || len(task.Outputs()) == 0 {
		return false
	}
	contents := make([][]byte, len(task.Outputs()))
	for i, out := range task.Outputs() {
		data, ok := r.Cache.Get(cache.Key(sig, out.Path()))
		if !ok {
			return false
		}
		contents[i] = data
	}
	for i, out := range task.Outputs() {
		if err := out.SetContent(contents[i]); err != nil {
			return false
		}
	}
	return true
}

func (r *Runner) store(task *Task, sig signature.Signature) {
	if r.Cache == nil || !task.Cacheable() {
		return
	}
	for _, out := range task.Outputs() {
		if data, err := out.Content(); err == nil {
			r.Cache.Put(cache.Key(sig, out.Path()), data)
		}
	}
}

func (r *Runner) notify(task *Task, status string, finished, cached bool) {
	if r.OnProgress != nil {
		r.OnProgress(task, status, finished, cached)
	}
}

func outputsExist(task *Task) bool {
	for _, out := range task.Outputs() {
		if !out.Exists() {
			return false
		}
	}
	return true
}
