package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"cbs/pkg/graph"
	"cbs/pkg/progress"
	"cbs/pkg/project"
)

type BuildCmd struct {
	Clean    bool `help:"Remove every output before building"`
	Progress bool `help:"Print phase progress to stderr"`
}

// Color constants
const (
	green  = "\033[32m"
	orange = "\033[33m"
	red    = "\033[31m"
	cyan   = "\033[36m"
	reset  = "\033[0m"
)

// taskDisplay prints a status line per attempted task. With a single worker
// the running task is shown and its line is replaced when it finishes.
type taskDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	inPlace bool
}

func newTaskDisplay(w io.Writer, workers int) *taskDisplay {
	return &taskDisplay{w: w, inPlace: workers <= 1}
}

func (d *taskDisplay) update(task *graph.Task, status string, finished bool, cached bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !finished {
		if d.inPlace {
			fmt.Fprintf(d.w, "  %s⏳%s %s", orange, reset, task.Name())
		}
		return
	}
	if d.inPlace && !cached {
		fmt.Fprint(d.w, "\r\033[K") // Clear the running line
	}

	var statusSymbol, color string
	if status == graph.StatusFailed {
		statusSymbol = "✗"
		color = red
	} else if cached {
		statusSymbol = "↻"
		color = cyan
	} else {
		statusSymbol = "✓"
		color = green
	}
	fmt.Fprintf(d.w, "  %s%s%s %s\n", color, statusSymbol, reset, task.Name())
}

func runBuild(ctx context.Context, cli *CLI, cmd BuildCmd) error {
	var display *taskDisplay
	s, err := cli.open(ctx, sessionOptions{
		onProgress: func(task *graph.Task, status string, finished bool, cached bool) {
			display.update(task, status, finished, cached)
		},
	})
	if err != nil {
		return err
	}
	defer s.project.Dispose()
	display = newTaskDisplay(os.Stdout, cli.workers(s.cfg))

	phases := []string{project.PhaseBuild}
	if cmd.Clean {
		phases = append([]string{project.PhaseClean}, phases...)
	}

	var prog progress.Progress
	if cmd.Progress {
		prog = progress.NewPrinter(os.Stderr)
	}

	results, err := s.project.Build(ctx, prog, phases...)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return report(os.Stdout, results)
}

// report prints a summary and the diagnostics of every failed task
func report(w io.Writer, results []graph.TaskResult) error {
	failures := graph.Failures(results)
	if len(results) == 0 {
		fmt.Fprintln(w, "Everything is up to date.")
		return nil
	}

	cached := 0
	for _, r := range results {
		if r.Cached {
			cached++
		}
	}
	failed, ok := failures.(*graph.MultipleCompileError)
	if !ok {
		fmt.Fprintf(w, "%sBuilt %d task(s)%s, %d restored from cache\n", green, len(results), reset, cached)
		return nil
	}

	fmt.Fprintf(w, "\n%s%d of %d task(s) failed%s\n", red, len(failed.Results), len(results), reset)
	for _, r := range failed.Results {
		fmt.Fprintf(w, "  %s\n", r.Task.Name())
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}
	return failures
}

// runPhases runs phases without building
func runPhases(ctx context.Context, cli *CLI, phases ...string) error {
	s, err := cli.open(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.project.Dispose()

	if _, err := s.project.Build(ctx, nil, phases...); err != nil {
		return fmt.Errorf("%s failed: %w", phases[len(phases)-1], err)
	}
	return nil
}
