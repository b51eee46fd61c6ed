// Package resource provides addressable byte-content handles used as task
// inputs and outputs, backed either by memory or by the local disk.
package resource

import (
	"errors"
	"io/fs"
	"path"
	"strings"
)

// Resource is a handle to readable and writable content addressed by a
// project-relative, slash separated path.
type Resource interface {
	// Path returns the cleaned project-relative path
	Path() string

	// Content returns the current content, or an error wrapping fs.ErrNotExist
	Content() ([]byte, error)

	// SetContent replaces the content, creating the resource if needed
	SetContent(data []byte) error

	// Exists reports whether the resource currently has content
	Exists() bool

	// Remove deletes the resource. Removing a missing resource is not an error.
	Remove() error

	// ChangeExt returns the sibling resource with the extension replaced
	ChangeExt(ext string) Resource

	// Output returns the build-directory variant of this resource,
	// mirroring the source layout. Output of an output is itself.
	Output() Resource

	// IsOutput reports whether the resource lives under the build directory
	IsOutput() bool

	String() string
}

// WalkFunc is called for every directory and file visited by FileSystem.Walk.
// Returning fs.SkipDir for a directory skips its contents.
type WalkFunc func(path string, isDir bool) error

// FileSystem resolves paths to resources and lists content.
type FileSystem interface {
	// Get returns the resource for path. The resource need not exist.
	Get(path string) Resource

	// BuildDirectory returns the project-relative build directory
	BuildDirectory() string

	// Walk visits every directory and file under root in lexical order
	Walk(root string, fn WalkFunc) error

	// RemoveAll deletes path and everything below it
	RemoveAll(path string) error
}

// backend is the storage behind the shared resource handle.
type backend interface {
	read(p string) ([]byte, error)
	write(p string, data []byte) error
	exists(p string) bool
	remove(p string) error
	buildDir() string
}

// handle implements Resource on top of a backend.
type handle struct {
	b    backend
	path string
}

func (h *handle) Path() string                 { return h.path }
func (h *handle) Content() ([]byte, error)     { return h.b.read(h.path) }
func (h *handle) SetContent(data []byte) error { return h.b.write(h.path, data) }
func (h *handle) Exists() bool                 { return h.b.exists(h.path) }
func (h *handle) Remove() error                { return h.b.remove(h.path) }
func (h *handle) String() string               { return h.path }

func (h *handle) ChangeExt(ext string) Resource {
	return &handle{b: h.b, path: ChangeExt(h.path, ext)}
}

func (h *handle) IsOutput() bool {
	return IsUnder(h.path, h.b.buildDir())
}

func (h *handle) Output() Resource {
	if h.IsOutput() {
		return h
	}
	return &handle{b: h.b, path: Clean(path.Join(h.b.buildDir(), h.path))}
}

// Clean normalizes p to a project-relative slash path without a leading slash.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Ext returns the extension of the base name of p including the dot, or "".
func Ext(p string) string {
	base := path.Base(p)
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return ""
	}
	return base[i:]
}

// ChangeExt replaces the extension of p with ext. An empty ext strips it.
func ChangeExt(p, ext string) string {
	return strings.TrimSuffix(p, Ext(p)) + ext
}

// IsUnder reports whether p equals dir or lies below it.
func IsUnder(p, dir string) bool {
	dir = Clean(dir)
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// IsNotExist reports whether err signals a missing resource.
func IsNotExist(err error) bool {
	return err != nil && errors.Is(err, fs.ErrNotExist)
}
