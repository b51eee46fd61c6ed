package project

import (
	"encoding/json"
	"fmt"
	"time"

	"cbs/pkg/graph"
	"cbs/pkg/planner"
)

// DefaultReportPath is used when the report option has no value
const DefaultReportPath = "report.json"

// Report describes one build phase
type Report struct {
	Session   string       `json:"session"`
	Created   time.Time    `json:"created"`
	Tasks     int          `json:"tasks"`
	Attempted int          `json:"attempted"`
	Failed    int          `json:"failed"`
	Results   []TaskReport `json:"results"`
}

// TaskReport is the outcome of one attempted task
type TaskReport struct {
	Name        string             `json:"name"`
	Builder     string             `json:"builder"`
	Inputs      []string           `json:"inputs"`
	Outputs     []string           `json:"outputs"`
	GeneratedBy string             `json:"generated_by,omitempty"`
	OK          bool               `json:"ok"`
	Cached      bool               `json:"cached,omitempty"`
	Diagnostics []graph.Diagnostic `json:"diagnostics,omitempty"`
}

// NewReport summarizes the results of a build
func NewReport(session string, plan *planner.PlanResult, results []graph.TaskResult) *Report {
	r := &Report{
		Session:   session,
		Created:   time.Now().UTC(),
		Tasks:     plan.Graph.Len(),
		Attempted: len(results),
		Results:   make([]TaskReport, 0, len(results)),
	}
	for _, res := range results {
		if !res.OK {
			r.Failed++
		}
		tr := TaskReport{
			Name:        res.Task.Name(),
			Builder:     res.Task.Builder().Params().Name,
			Inputs:      res.Task.InputPaths(),
			Outputs:     res.Task.OutputPaths(),
			OK:          res.OK,
			Cached:      res.Cached,
			Diagnostics: res.Diagnostics,
		}
		if parent := res.Task.GeneratedBy(); parent != nil {
			tr.GeneratedBy = parent.Name()
		}
		r.Results = append(r.Results, tr)
	}
	return r
}

func (p *Project) writeReport(path string, plan *planner.PlanResult, results []graph.TaskResult) error {
	if path == "" {
		path = DefaultReportPath
	}
	data, err := json.MarshalIndent(NewReport(p.session, plan, results), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode build report: %w", err)
	}
	if err := p.cfg.FS.Get(path).SetContent(data); err != nil {
		return fmt.Errorf("failed to write build report %s: %w", path, err)
	}
	return nil
}
