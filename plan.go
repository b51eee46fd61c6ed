package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"cbs/pkg/graph"
	"cbs/pkg/planner"
)

type PlanCmd struct {
	Format string `help:"Output format" enum:"text,yaml" default:"text"`
}

// planDoc is the yaml form of a plan
type planDoc struct {
	Root     string     `yaml:"root"`
	BuildDir string     `yaml:"build_dir"`
	Tasks    []planTask `yaml:"tasks"`
	Excluded []string   `yaml:"excluded,omitempty"`
}

type planTask struct {
	Name        string   `yaml:"name"`
	Builder     string   `yaml:"builder"`
	Inputs      []string `yaml:"inputs"`
	Outputs     []string `yaml:"outputs"`
	GeneratedBy string   `yaml:"generated_by,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

func runPlan(ctx context.Context, cli *CLI, cmd PlanCmd) error {
	s, err := cli.open(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.project.Dispose()

	result, err := s.project.Plan(ctx)
	if err != nil {
		return fmt.Errorf("failed to plan build graph: %w", err)
	}

	if cmd.Format == "yaml" {
		return printPlanYAML(os.Stdout, s, result)
	}
	printPlanResult(os.Stdout, s, result)
	return nil
}

func printPlanYAML(w io.Writer, s *session, result *planner.PlanResult) error {
	doc := planDoc{
		Root:     s.root,
		BuildDir: s.fs.BuildDirectory(),
		Tasks:    make([]planTask, 0, len(result.Tasks)),
		Excluded: result.Excluded,
	}
	for _, task := range result.Tasks {
		pt := planTask{
			Name:    task.Name(),
			Builder: task.Builder().Params().Name,
			Inputs:  task.InputPaths(),
			Outputs: task.OutputPaths(),
		}
		if parent := task.GeneratedBy(); parent != nil {
			pt.GeneratedBy = parent.Name()
		}
		for _, dep := range result.Graph.Dependencies(task) {
			pt.DependsOn = append(pt.DependsOn, dep.Name())
		}
		doc.Tasks = append(doc.Tasks, pt)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func printPlanResult(w io.Writer, s *session, result *planner.PlanResult) {
	fmt.Fprintf(w, "Planning Directory: %s\n", s.root)
	if len(result.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks discovered.")
		return
	}

	for _, task := range result.Tasks {
		printTask(w, result.Graph, task)
	}

	if len(result.Excluded) > 0 {
		fmt.Fprintln(w, "\nExcluded:")
		for _, path := range result.Excluded {
			fmt.Fprintf(w, "  %s\n", path)
		}
	}
}

func printTask(w io.Writer, g *graph.Graph, task *graph.Task) {
	// Colors
	green := "\033[32m"
	gray := "\033[90m"
	blue := "\033[34m"
	yellow := "\033[33m"
	reset := "\033[0m"

	fmt.Fprintf(w, "- %s%s%s %s[%s]%s\n",
		green, task.Name(), reset,
		yellow, task.Builder().Params().Name, reset)

	for _, out := range task.OutputPaths() {
		fmt.Fprintf(w, "    %s=> %s%s\n", blue, out, reset)
	}
	for _, dep := range g.Dependencies(task) {
		fmt.Fprintf(w, "    %s-> %s%s\n", gray, dep.Name(), reset)
	}
}
