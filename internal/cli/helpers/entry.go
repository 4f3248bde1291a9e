package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveEntry returns the absolute path of the application entry point.
// An explicit entry is taken relative to cwd and must exist; otherwise the
// first existing candidate wins.
func ResolveEntry(cwd, entry string, candidates []string) (string, error) {
	if entry != "" {
		path := entry
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		if !isFile(path) {
			return "", fmt.Errorf("entry file not found: %s", path)
		}
		return path, nil
	}

	for _, candidate := range candidates {
		path := filepath.Join(cwd, candidate)
		if isFile(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("could not find an entry point in %s (tried %s); pass --entry",
		cwd, strings.Join(candidates, ", "))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
