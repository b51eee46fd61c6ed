package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"cbs/pkg/builtin"
	"cbs/pkg/cache"
	"cbs/pkg/config"
	"cbs/pkg/ctxlog"
	"cbs/pkg/graph"
	"cbs/pkg/metrics"
	"cbs/pkg/project"
	"cbs/pkg/registry"
	"cbs/pkg/resource"
)

const version = "1.0.0"

type CLI struct {
	Version   kong.VersionFlag  `short:"v" help:"Show version information"`
	Root      string            `help:"Project root directory" default:"." type:"path"`
	BuildDir  string            `help:"Build directory relative to the root (overrides cbs.hcl)"`
	Parallel  int               `short:"j" help:"Number of parallel workers for task execution (overrides cbs.hcl)"`
	Option    map[string]string `short:"o" help:"Build option KEY=VALUE (overrides cbs.hcl options)"`
	CacheSize int               `help:"Number of outputs kept in the in-memory output cache, 0 disables it" default:"4096"`
	LogLevel  string            `help:"Log level" enum:"debug,info,warn,error" default:"warn"`
	LogFormat string            `help:"Log format" enum:"text,json" default:"text"`

	Plan      PlanCmd      `cmd:"" help:"Plan and print the task graph"`
	Build     BuildCmd     `cmd:"" help:"Build every out-of-date task"`
	Clean     CleanCmd     `cmd:"" help:"Remove the outputs of every task"`
	Distclean DistcleanCmd `cmd:"" help:"Remove the build directory"`
	Watch     WatchCmd     `cmd:"" help:"Rebuild whenever a source changes"`
}

type CleanCmd struct{}

type DistcleanCmd struct{}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("cbs"),
		kong.Description("Incremental content build system"),
		kong.UsageOnError(),
		kong.Vars{"version": "cbs version " + version},
	)

	logger := ctxlog.New(cli.LogLevel, cli.LogFormat, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	var err error
	switch kctx.Command() {
	case "plan":
		err = runPlan(ctx, &cli, cli.Plan)
	case "build":
		err = runBuild(ctx, &cli, cli.Build)
	case "clean":
		err = runPhases(ctx, &cli, project.PhaseClean)
	case "distclean":
		err = runPhases(ctx, &cli, project.PhaseDistclean)
	case "watch":
		err = runWatch(ctx, &cli, cli.Watch)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		var failed *graph.MultipleCompileError
		if !errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// session is a project opened on the root directory
type session struct {
	root    string
	fs      *resource.DiskFS
	cfg     *config.Config
	project *project.Project
	logger  *slog.Logger
}

// sessionOptions are the collaborators that differ between commands
type sessionOptions struct {
	metrics    *metrics.Metrics
	onProgress graph.ProgressCallback
}

// open loads the project files under the root and creates a project with
// every source file as input
func (cli *CLI) open(ctx context.Context, opts sessionOptions) (*session, error) {
	logger := ctxlog.FromContext(ctx)

	cfg, err := config.Load(cli.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Loaded configuration", "files", cfg.Files)

	buildDir := cfg.BuildDir
	if cli.BuildDir != "" {
		buildDir = cli.BuildDir
	}
	fs, err := resource.NewDiskFS(cli.Root, buildDir)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	if err := reg.Install(builtin.Module); err != nil {
		return nil, err
	}
	if err := reg.Register(builtin.FromConfig(cfg.Builders)...); err != nil {
		return nil, fmt.Errorf("invalid builder in configuration: %w", err)
	}

	outputCache, err := cli.outputCache()
	if err != nil {
		return nil, err
	}

	p := project.New(project.Config{
		FS:         fs,
		Registry:   reg,
		Workers:    cli.workers(cfg),
		Logger:     logger,
		Cache:      outputCache,
		Metrics:    opts.metrics,
		OnProgress: opts.onProgress,
	})
	for k, v := range cfg.Options {
		p.SetOption(k, v)
	}
	for k, v := range cli.Option {
		p.SetOption(k, v)
	}

	s := &session{root: fs.Root(), fs: fs, cfg: cfg, project: p, logger: logger}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan sets every source file with a builder as project input. Folders
// excluded by the configuration are not scanned.
func (s *session) scan() error {
	if err := s.project.FindSources("", s.cfg.Exclude); err != nil {
		return fmt.Errorf("failed to find sources: %w", err)
	}
	s.logger.Debug("Found sources", "count", len(s.project.Inputs()))
	return nil
}

func (cli *CLI) workers(cfg *config.Config) int {
	switch {
	case cli.Parallel > 0:
		return cli.Parallel
	case cfg.Workers > 0:
		return cfg.Workers
	default:
		return runtime.NumCPU()
	}
}

// outputCache returns nil when the cache is disabled
func (cli *CLI) outputCache() (cache.Cache, error) {
	if cli.CacheSize <= 0 {
		return nil, nil
	}
	mem, err := cache.NewMemory(cli.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create output cache: %w", err)
	}
	return mem, nil
}

func newMetrics(reg prometheus.Registerer) (*metrics.Metrics, error) {
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}
