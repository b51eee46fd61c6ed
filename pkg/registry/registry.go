// Package registry maps source extensions to the builders responsible for
// them. Builders are registered explicitly at start-up.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"cbs/pkg/graph"
	"cbs/pkg/resource"
)

// Module registers a set of builders
type Module interface {
	Register(r *Registry) error
}

// Registry holds the builders of one engine session
type Registry struct {
	builders []graph.Builder
	byName   map[string]graph.Builder
	byExt    map[string][]graph.Builder
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		byName: make(map[string]graph.Builder),
		byExt:  make(map[string][]graph.Builder),
	}
}

// Register adds builders. Names must be unique and every extension must
// start with a dot.
func (r *Registry) Register(builders ...graph.Builder) error {
	for _, b := range builders {
		p := b.Params()
		if p.Name == "" {
			return fmt.Errorf("builder without a name")
		}
		if _, exists := r.byName[p.Name]; exists {
			return fmt.Errorf("builder %s already registered", p.Name)
		}
		if len(p.InExts) == 0 {
			return fmt.Errorf("builder %s accepts no input extensions", p.Name)
		}
		for _, ext := range append(append([]string{}, p.InExts...), p.OutExt) {
			if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
				return fmt.Errorf("builder %s: invalid extension %q", p.Name, ext)
			}
		}

		r.builders = append(r.builders, b)
		r.byName[p.Name] = b
		for _, ext := range p.InExts {
			r.byExt[ext] = append(r.byExt[ext], b)
		}
	}
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(builders ...graph.Builder) {
	if err := r.Register(builders...); err != nil {
		panic(err)
	}
}

// Install registers the builders of every module
func (r *Registry) Install(modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// Match returns the builders accepting the extension of path, in
// registration order. No match means the resource is not built.
func (r *Registry) Match(path string) []graph.Builder {
	return r.byExt[resource.Ext(path)]
}

// Lookup returns a builder by name
func (r *Registry) Lookup(name string) (graph.Builder, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Builders returns every builder in registration order
func (r *Registry) Builders() []graph.Builder {
	return r.builders
}

// Extensions returns every accepted input extension in lexical order
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
