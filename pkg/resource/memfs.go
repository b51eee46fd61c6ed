package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemFS is an in-memory FileSystem. It is safe for concurrent use.
type MemFS struct {
	mu        sync.RWMutex
	files     map[string][]byte
	buildPath string
}

// NewMemFS creates an empty in-memory file system with the given build directory
func NewMemFS(buildDir string) *MemFS {
	return &MemFS{
		files:     make(map[string][]byte),
		buildPath: Clean(buildDir),
	}
}

// Get returns the resource for path
func (m *MemFS) Get(p string) Resource {
	return &handle{b: m, path: Clean(p)}
}

// AddFile writes content at path and returns the resource
func (m *MemFS) AddFile(p, content string) Resource {
	r := m.Get(p)
	_ = r.SetContent([]byte(content))
	return r
}

// BuildDirectory returns the build directory
func (m *MemFS) BuildDirectory() string {
	return m.buildPath
}

// Paths returns every stored path in lexical order
func (m *MemFS) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Walk visits the directories and files under root. Directories are
// synthesized from file paths.
func (m *MemFS) Walk(root string, fn WalkFunc) error {
	root = Clean(root)
	visitedDirs := make(map[string]bool)
	var skipped []string

	isSkipped := func(p string) bool {
		for _, s := range skipped {
			if IsUnder(p, s) {
				return true
			}
		}
		return false
	}

	for _, p := range m.Paths() {
		if root != "" && !IsUnder(p, root) {
			continue
		}
		if isSkipped(p) {
			continue
		}

		// Emit parent directories below root that have not been seen yet
		var dirs []string
		for dir := path.Dir(p); dir != "." && dir != root; dir = path.Dir(dir) {
			dirs = append([]string{dir}, dirs...)
		}
		skip := false
		for _, dir := range dirs {
			if visitedDirs[dir] {
				continue
			}
			visitedDirs[dir] = true
			if err := fn(dir, true); err != nil {
				if errors.Is(err, fs.SkipDir) {
					skipped = append(skipped, dir)
					skip = true
					break
				}
				return err
			}
		}
		if skip {
			continue
		}

		if err := fn(p, false); err != nil {
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
	}
	return nil
}

// RemoveAll deletes path and every path below it
func (m *MemFS) RemoveAll(p string) error {
	p = Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.files {
		if IsUnder(k, p) {
			delete(m.files, k)
		}
	}
	return nil
}

func (m *MemFS) read(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, fs.ErrNotExist)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemFS) write(p string, data []byte) error {
	if p == "" || strings.HasSuffix(p, "/") {
		return fmt.Errorf("write %q: invalid path", p)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = stored
	return nil
}

func (m *MemFS) exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[p]
	return ok
}

func (m *MemFS) remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	return nil
}

func (m *MemFS) buildDir() string {
	return m.buildPath
}
