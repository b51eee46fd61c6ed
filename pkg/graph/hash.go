package graph

import (
	"cbs/pkg/resource"
	"cbs/pkg/signature"
)

// DigestFunc returns the content digest of a task input
type DigestFunc func(in resource.Resource) (uint64, error)

// SignatureInput collects everything that contributes to the signature of
// task, keeping the declared order of inputs and outputs
func SignatureInput(task *Task, opts Options, digest DigestFunc) (signature.Input, error) {
	in := signature.Input{
		Builder: task.Builder().Params().Name,
		Inputs:  make([]signature.Entry, 0, len(task.Inputs())),
		Outputs: task.OutputPaths(),
	}
	for _, r := range task.Inputs() {
		d, err := digest(r)
		if err != nil {
			return signature.Input{}, err
		}
		in.Inputs = append(in.Inputs, signature.Entry{Path: r.Path(), Digest: d})
	}
	if src, ok := task.Builder().(SignatureSource); ok {
		in.Extra = src.SignatureBytes(opts)
	}
	return in, nil
}

// ComputeSignature computes the signature of task
func ComputeSignature(task *Task, opts Options, digest DigestFunc) (signature.Signature, error) {
	in, err := SignatureInput(task, opts, digest)
	if err != nil {
		return signature.Signature{}, err
	}
	return signature.Compute(in), nil
}
