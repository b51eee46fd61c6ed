package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskFS is a FileSystem rooted at a directory on the local disk.
type DiskFS struct {
	root      string
	buildPath string
}

// NewDiskFS creates a file system rooted at root with the given
// project-relative build directory
func NewDiskFS(root, buildDir string) (*DiskFS, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return &DiskFS{root: absRoot, buildPath: Clean(buildDir)}, nil
}

// Root returns the absolute root directory
func (d *DiskFS) Root() string {
	return d.root
}

// Get returns the resource for path
func (d *DiskFS) Get(p string) Resource {
	return &handle{b: d, path: Clean(p)}
}

// BuildDirectory returns the build directory
func (d *DiskFS) BuildDirectory() string {
	return d.buildPath
}

// Abs returns the absolute disk path of a project-relative path
func (d *DiskFS) Abs(p string) string {
	return filepath.Join(d.root, filepath.FromSlash(Clean(p)))
}

// Rel converts an absolute disk path back to a project-relative path
func (d *DiskFS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return "", err
	}
	return Clean(filepath.ToSlash(rel)), nil
}

// Walk visits the directories and files under root in lexical order
func (d *DiskFS) Walk(root string, fn WalkFunc) error {
	start := d.Abs(root)
	err := filepath.WalkDir(start, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return fs.SkipAll
			}
			return err
		}
		if p == start {
			return nil
		}
		rel, err := d.Rel(p)
		if err != nil {
			return err
		}
		return fn(rel, entry.IsDir())
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", start, err)
	}
	return nil
}

// RemoveAll deletes path and everything below it
func (d *DiskFS) RemoveAll(p string) error {
	return os.RemoveAll(d.Abs(p))
}

func (d *DiskFS) read(p string) ([]byte, error) {
	return os.ReadFile(d.Abs(p))
}

func (d *DiskFS) write(p string, data []byte) error {
	abs := d.Abs(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	return os.WriteFile(abs, data, 0644)
}

func (d *DiskFS) exists(p string) bool {
	info, err := os.Stat(d.Abs(p))
	return err == nil && !info.IsDir()
}

func (d *DiskFS) remove(p string) error {
	err := os.Remove(d.Abs(p))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DiskFS) buildDir() string {
	return d.buildPath
}
