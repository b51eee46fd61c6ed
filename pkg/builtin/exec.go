package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cbs/pkg/config"
	"cbs/pkg/graph"
	"cbs/pkg/resource"
)

// Placeholders replaced in every command argument
const (
	InputPlaceholder  = "$in"
	OutputPlaceholder = "$out"
)

// Exec runs an external tool for every input. The tool reads the file passed
// for $in and writes the file passed for $out.
type Exec struct {
	params           graph.Params
	command          []string
	timeout          time.Duration
	signatureOptions []string
}

// NewExec creates an external tool builder
func NewExec(params graph.Params, command []string, timeout time.Duration, signatureOptions []string) *Exec {
	return &Exec{
		params:           params,
		command:          command,
		timeout:          timeout,
		signatureOptions: signatureOptions,
	}
}

// FromConfig creates the builders declared in the project files
func FromConfig(builders []*config.Builder) []graph.Builder {
	out := make([]graph.Builder, 0, len(builders))
	for _, b := range builders {
		params := graph.Params{
			Name:        b.Name,
			InExts:      b.Inputs,
			OutExt:      b.Output,
			CreateOrder: b.CreateOrder,
		}
		out = append(out, NewExec(params, b.Command, b.Timeout, b.SignatureOptions))
	}
	return out
}

func (e *Exec) Params() graph.Params {
	return e.params
}

func (e *Exec) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	return graph.DefaultTask(e, input), nil
}

// SignatureBytes folds in the command line and the selected options
func (e *Exec) SignatureBytes(opts graph.Options) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(e.command, "\x00"))
	for _, key := range e.signatureOptions {
		fmt.Fprintf(&b, "\n%s=%s", key, opts.Option(key, ""))
	}
	return []byte(b.String())
}

func (e *Exec) Build(ctx context.Context, task *graph.Task) error {
	input := task.Input(0)
	data, err := input.Content()
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "cbs-exec-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, "in"+resource.Ext(input.Path()))
	outPath := filepath.Join(workDir, "out"+e.params.OutExt)
	if err := os.WriteFile(inPath, data, 0644); err != nil {
		return fmt.Errorf("failed to stage input: %w", err)
	}

	args := make([]string, len(e.command))
	for i, a := range e.command {
		a = strings.ReplaceAll(a, OutputPlaceholder, outPath)
		args[i] = strings.ReplaceAll(a, InputPlaceholder, inPath)
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "CBS_INPUT="+input.Path())
	cmd.WaitDelay = time.Second

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return graph.NewCompileError(input, 0, "%s timed out after %s", e.params.Name, e.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return graph.WrapCompileError(input, 0, fmt.Errorf("%s failed: %w\nOutput: %s", e.params.Name, err, strings.TrimSpace(string(output))))
		}
		return fmt.Errorf("failed to run %s: %w", args[0], err)
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return graph.NewCompileError(input, 0, "%s wrote no output", e.params.Name)
		}
		return err
	}
	return task.Output(0).SetContent(result)
}
