// Package config loads cbs.hcl project files. Files found while walking up
// from a start directory are merged from the root down, so that the file
// closest to the start directory wins.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// FileName is the name of project files
const FileName = "cbs.hcl"

// DefaultBuildDir is used when no file sets build_dir
const DefaultBuildDir = "build"

// Config represents the merged configuration from all cbs.hcl files
type Config struct {
	BuildDir string
	Exclude  []string
	Options  map[string]string
	// Workers is zero when unset
	Workers  int
	Builders []*Builder
	// Files lists the merged files, root first
	Files []string
}

// Builder declares an external tool builder
type Builder struct {
	Name             string
	Inputs           []string
	Output           string
	Command          []string
	CreateOrder      int
	Timeout          time.Duration
	SignatureOptions []string
}

// fileRoot is the schema of a single file
type fileRoot struct {
	BuildDir *string         `hcl:"build_dir,optional"`
	Exclude  []string        `hcl:"exclude,optional"`
	Options  hcl.Expression  `hcl:"options,optional"`
	Workers  *int            `hcl:"workers,optional"`
	Builders []*builderBlock `hcl:"builder,block"`
}

type builderBlock struct {
	Name             string   `hcl:"name,label"`
	Inputs           []string `hcl:"inputs"`
	Output           string   `hcl:"output"`
	Command          []string `hcl:"command"`
	CreateOrder      *int     `hcl:"create_order,optional"`
	Timeout          *string  `hcl:"timeout,optional"`
	SignatureOptions []string `hcl:"signature_options,optional"`
}

// New returns the configuration used when no file exists
func New() *Config {
	return &Config{
		BuildDir: DefaultBuildDir,
		Options:  make(map[string]string),
	}
}

// Load loads and merges all cbs.hcl files from the directory hierarchy
func Load(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Walk up the directory hierarchy looking for project files
	var files []string
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	config := New()
	parser := hclparse.NewParser()

	// Process files from root to leaf so leaf files override parent files
	for i := len(files) - 1; i >= 0; i-- {
		if err := config.mergeFile(parser, files[i]); err != nil {
			return nil, fmt.Errorf("failed to merge config file %s: %w", files[i], err)
		}
	}
	return config, nil
}

// LoadFile loads a single file on top of the defaults
func LoadFile(path string) (*Config, error) {
	config := New()
	if err := config.mergeFile(hclparse.NewParser(), path); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return config, nil
}

// mergeFile merges a single file into the current configuration
func (c *Config) mergeFile(parser *hclparse.Parser, path string) error {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse: %w", diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode: %w", diags)
	}

	if root.BuildDir != nil {
		c.BuildDir = *root.BuildDir
	}
	if root.Workers != nil {
		if *root.Workers < 0 {
			return fmt.Errorf("workers must not be negative, got %d", *root.Workers)
		}
		c.Workers = *root.Workers
	}
	c.Exclude = append(c.Exclude, root.Exclude...)

	opts, err := evalOptions(root.Options)
	if err != nil {
		return err
	}
	for k, v := range opts {
		c.Options[k] = v
	}

	for _, block := range root.Builders {
		b, err := block.translate()
		if err != nil {
			return err
		}
		c.setBuilder(b)
	}

	c.Files = append(c.Files, path)
	return nil
}

func (c *Config) setBuilder(b *Builder) {
	for i, existing := range c.Builders {
		if existing.Name == b.Name {
			c.Builders[i] = b
			return
		}
	}
	c.Builders = append(c.Builders, b)
}

func (b *builderBlock) translate() (*Builder, error) {
	if len(b.Command) == 0 {
		return nil, fmt.Errorf("builder %q: command must not be empty", b.Name)
	}
	out := &Builder{
		Name:             b.Name,
		Inputs:           b.Inputs,
		Output:           b.Output,
		Command:          b.Command,
		SignatureOptions: b.SignatureOptions,
	}
	if b.CreateOrder != nil {
		out.CreateOrder = *b.CreateOrder
	}
	if b.Timeout != nil {
		d, err := time.ParseDuration(*b.Timeout)
		if err != nil {
			return nil, fmt.Errorf("builder %q: invalid timeout: %w", b.Name, err)
		}
		out.Timeout = d
	}
	return out, nil
}

// evalOptions evaluates the options map. Numbers and bools are converted to
// their string form.
func evalOptions(expr hcl.Expression) (map[string]string, error) {
	opts := make(map[string]string)
	if expr == nil {
		return opts, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid options: %w", diags)
	}
	if val.IsNull() {
		return opts, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("options must be a map, got %s", val.Type().FriendlyName())
	}

	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		key := k.AsString()
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", key, err)
		}
		if s.IsNull() || !s.IsKnown() {
			return nil, fmt.Errorf("option %q has no value", key)
		}
		opts[key] = s.AsString()
	}
	return opts, nil
}

// OptionKeys returns the configured option keys in lexical order
func (c *Config) OptionKeys() []string {
	keys := make([]string, 0, len(c.Options))
	for k := range c.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
