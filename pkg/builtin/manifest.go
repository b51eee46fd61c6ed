package builtin

import (
	"context"
	"fmt"
	"strings"

	"cbs/pkg/graph"
	"cbs/pkg/resource"
	"cbs/pkg/signature"
)

// ManifestCreateOrder places manifests after every ordinary builder
const ManifestCreateOrder = 1000

// Manifest lists the outputs of every task created before it together with
// their content digests
type Manifest struct{}

func (Manifest) Params() graph.Params {
	return graph.Params{
		Name:        "Manifest",
		InExts:      []string{".manifest"},
		OutExt:      ".manifestc",
		CreateOrder: ManifestCreateOrder,
	}
}

func (b Manifest) Create(cc graph.CreateContext, input resource.Resource) (*graph.Task, error) {
	task := graph.DefaultTask(b, input)
	for _, t := range cc.Tasks() {
		task.AddInput(t.Outputs()...)
	}
	return task, nil
}

func (Manifest) Build(ctx context.Context, task *graph.Task) error {
	header, err := task.Input(0).Content()
	if err != nil {
		return err
	}

	var b strings.Builder
	if h := strings.TrimSpace(string(header)); h != "" {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	for _, in := range task.Inputs()[1:] {
		data, err := in.Content()
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s %016x\n", in.Path(), signature.Digest(data))
	}
	return task.Output(0).SetContent([]byte(b.String()))
}
