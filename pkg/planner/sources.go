package planner

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"cbs/pkg/resource"
)

// FindSources lists every file under root, skipping hidden directories, the
// build directory, common tool directories and every directory matching one
// of the skipDirs patterns. Hidden files are skipped as well.
func FindSources(fsys resource.FileSystem, root string, skipDirs []string) ([]string, error) {
	buildDir := fsys.BuildDirectory()
	var sources []string

	err := fsys.Walk(root, func(p string, isDir bool) error {
		base := path.Base(p)
		if isDir {
			if strings.HasPrefix(base, ".") || isSkippableDir(base) || p == buildDir || matchesAny(p, skipDirs) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(base, ".") || matchesAny(path.Dir(p), skipDirs) {
			return nil
		}
		sources = append(sources, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find sources under %q: %w", root, err)
	}
	return sources, nil
}

func matchesAny(dir string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = resource.Clean(pattern)
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, dir); ok || resource.IsUnder(dir, pattern) {
			return true
		}
	}
	return false
}

// isSkippableDir returns true for tool directories that never hold sources
func isSkippableDir(dirName string) bool {
	skipDirs := []string{
		"node_modules",
		"__pycache__",
	}

	for _, skip := range skipDirs {
		if dirName == skip {
			return true
		}
	}
	return false
}
