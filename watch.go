package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cbs/pkg/graph"
	"cbs/pkg/planner"
	"cbs/pkg/project"
	"cbs/pkg/resource"
)

type WatchCmd struct {
	MetricsAddr string        `help:"Serve Prometheus metrics on this address, e.g. localhost:9090"`
	Debounce    time.Duration `help:"Quiet period after a change before rebuilding" default:"200ms"`
}

func runWatch(ctx context.Context, cli *CLI, cmd WatchCmd) error {
	reg := prometheus.NewRegistry()
	m, err := newMetrics(reg)
	if err != nil {
		return err
	}

	var display *taskDisplay
	s, err := cli.open(ctx, sessionOptions{
		metrics:    m,
		onProgress: func(task *graph.Task, status string, finished bool, cached bool) {
			display.update(task, status, finished, cached)
		},
	})
	if err != nil {
		return err
	}
	defer s.project.Dispose()
	display = newTaskDisplay(os.Stdout, cli.workers(s.cfg))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := s.watchDirs(watcher, ""); err != nil {
		return err
	}

	s.rebuild(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return s.watchLoop(ctx, watcher, cmd.Debounce)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	if cmd.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cmd.MetricsAddr, Handler: mux}
		g.Add(func() error {
			s.logger.Info("Serving metrics", "addr", cmd.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchLoop rebuilds once no change has been seen for the debounce period
func (s *session) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) error {
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, ignored := s.ignored(event.Name)
			if ignored {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.watchDirs(watcher, rel); err != nil {
						s.logger.Warn("Failed to watch directory", "dir", rel, "error", err)
					}
				}
			}
			s.logger.Debug("Change detected", "path", rel, "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watch error", "error", err)

		case <-timer.C:
			s.rebuild(ctx)
		}
	}
}

// rebuild rescans the sources and builds. Build errors are logged and the
// session keeps watching.
func (s *session) rebuild(ctx context.Context) {
	if err := s.scan(); err != nil {
		s.logger.Error("Scan failed", "error", err)
		return
	}
	results, err := s.project.Build(ctx, nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Build failed", "error", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return
	}
	_ = report(os.Stdout, results)
}

// watchDirs adds dir and every directory below it that may hold sources
func (s *session) watchDirs(watcher *fsnotify.Watcher, dir string) error {
	if err := watcher.Add(s.fs.Abs(dir)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.fs.Abs(dir), err)
	}
	return s.fs.Walk(dir, func(p string, isDir bool) error {
		if !isDir {
			return nil
		}
		if s.skipDir(p) {
			return fs.SkipDir
		}
		if err := watcher.Add(s.fs.Abs(p)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", s.fs.Abs(p), err)
		}
		return nil
	})
}

func (s *session) skipDir(p string) bool {
	if strings.HasPrefix(path.Base(p), ".") || resource.IsUnder(p, s.fs.BuildDirectory()) {
		return true
	}
	for _, excluded := range s.cfg.Exclude {
		if resource.IsUnder(p, excluded) {
			return true
		}
	}
	return false
}

// ignored converts an event path to a project path and reports whether
// changes to it never affect the build
func (s *session) ignored(name string) (string, bool) {
	rel, err := s.fs.Rel(name)
	if err != nil {
		return "", true
	}
	if resource.IsUnder(rel, s.fs.BuildDirectory()) || rel == s.reportPath() {
		return rel, true
	}
	if base := path.Base(rel); strings.HasPrefix(base, ".") && base != planner.IgnoreFile {
		return rel, true
	}
	if dir := path.Dir(rel); dir != "." {
		return rel, s.skipDir(dir)
	}
	return rel, false
}

func (s *session) reportPath() string {
	opts := s.project.Options()
	if !opts.Has(project.ReportOption) {
		return ""
	}
	if p := opts.Option(project.ReportOption, ""); p != "" {
		return resource.Clean(p)
	}
	return project.DefaultReportPath
}
