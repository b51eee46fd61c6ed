package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_MergesHierarchy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `
build_dir = "out"
exclude   = ["/vendor"]
workers   = 4

options = {
  OPTIM = "-O1"
  debug = true
  level = 3
}

builder "Upper" {
  inputs  = [".txt"]
  output  = ".upper"
  command = ["tr", "a-z", "A-Z"]
}
`)
	child := filepath.Join(root, "game")
	writeFile(t, filepath.Join(child, FileName), `
exclude = ["tmp"]

options = {
  OPTIM = "-O2"
}

builder "Upper" {
  inputs            = [".txt", ".md"]
  output            = ".up"
  command           = ["sh", "-c", "tr a-z A-Z"]
  create_order      = 5
  timeout           = "2s"
  signature_options = ["OPTIM"]
}
`)

	cfg, err := Load(child)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.BuildDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"/vendor", "tmp"}, cfg.Exclude)
	assert.Equal(t, map[string]string{"OPTIM": "-O2", "debug": "true", "level": "3"}, cfg.Options)
	assert.Equal(t, []string{"OPTIM", "debug", "level"}, cfg.OptionKeys())
	assert.Len(t, cfg.Files, 2)

	want := []*Builder{{
		Name:             "Upper",
		Inputs:           []string{".txt", ".md"},
		Output:           ".up",
		Command:          []string{"sh", "-c", "tr a-z A-Z"},
		CreateOrder:      5,
		Timeout:          2 * time.Second,
		SignatureOptions: []string{"OPTIM"},
	}}
	if diff := cmp.Diff(want, cfg.Builders); diff != "" {
		t.Errorf("builders mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultBuildDir, cfg.BuildDir)
	assert.Empty(t, cfg.Options)
	assert.Zero(t, cfg.Workers)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `build_dir = `},
		{"unknown attribute", `color = "red"`},
		{"options not a map", `options = ["a"]`},
		{"nested option", `options = { a = { b = 1 } }`},
		{"empty command", "builder \"X\" {\n inputs = [\".x\"]\n output = \".y\"\n command = []\n}"},
		{"bad timeout", "builder \"X\" {\n inputs = [\".x\"]\n output = \".y\"\n command = [\"true\"]\n timeout = \"soon\"\n}"},
		{"negative workers", `workers = -1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			writeFile(t, path, tt.content)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}
