package graph

import (
	"sort"
	"strconv"
	"strings"
)

// Params describes a builder: its name, the input extensions it accepts, the
// extension of its primary output and its creation order. Builders with a
// higher creation order are created after those with a lower one.
type Params struct {
	Name        string
	InExts      []string
	OutExt      string
	CreateOrder int
}

// Extend returns new parameters accepting the union of p's input extensions
// and exts. The creation order is inherited.
func (p Params) Extend(name, outExt string, exts ...string) Params {
	seen := make(map[string]bool)
	var union []string
	for _, e := range append(append([]string{}, p.InExts...), exts...) {
		if !seen[e] {
			seen[e] = true
			union = append(union, e)
		}
	}
	return Params{
		Name:        name,
		InExts:      union,
		OutExt:      outExt,
		CreateOrder: p.CreateOrder,
	}
}

// Accepts reports whether ext is one of the input extensions
func (p Params) Accepts(ext string) bool {
	for _, e := range p.InExts {
		if e == ext {
			return true
		}
	}
	return false
}

// Options are global string build options.
type Options map[string]string

// Option returns the value of key or def when unset
func (o Options) Option(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is set
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Bool interprets the value of key as a boolean
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// List splits the value of key on commas, dropping empty elements
func (o Options) List(key string) []string {
	var out []string
	for _, s := range strings.Split(o[key], ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a copy of the options
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Keys returns the option keys in lexical order
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
