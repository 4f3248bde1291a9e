// Package safe opens user-named input files and converts numbers without
// overflow.
package safe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Size limits for the files docteur reads.
const (
	// DefaultMaxFileSize bounds configuration files (1MB).
	DefaultMaxFileSize = 1 << 20
	// MaxResultFileSize bounds saved profiling results (64MB).
	MaxResultFileSize = 64 << 20
	// MaxTraceFileSize bounds runtime trace-event files (512MB).
	MaxTraceFileSize = 512 << 20
)

// FileOptions configures Open and ReadFile.
type FileOptions struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means DefaultMaxFileSize.
	MaxSize int64
	// AllowSymlinks allows opening through a symlink. Default is false.
	AllowSymlinks bool
}

// Open opens a regular file for reading after checking its type and size.
// Symlinks are rejected unless allowed.
func Open(path string, opts *FileOptions) (*os.File, error) {
	if opts == nil {
		opts = &FileOptions{}
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	cleanPath := filepath.Clean(path)

	// Check file info without following symlinks.
	info, err := os.Lstat(cleanPath)
	if err != nil {
		return nil, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.AllowSymlinks {
			return nil, fmt.Errorf("file %q is a symlink, which is not allowed here", path)
		}
		info, err = os.Stat(cleanPath)
		if err != nil {
			return nil, err
		}
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path %q is not a regular file", path)
	}

	if info.Size() > maxSize {
		return nil, fmt.Errorf("file %q exceeds maximum allowed size of %d bytes", path, maxSize)
	}

	// #nosec G304 - the path was validated above.
	return os.Open(cleanPath)
}

// ReadFile reads a file with the checks of Open. Growth after the size
// check is cut at the limit.
func ReadFile(path string, opts *FileOptions) ([]byte, error) {
	f, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only file
	}()

	limit := int64(DefaultMaxFileSize)
	if opts != nil && opts.MaxSize > 0 {
		limit = opts.MaxSize
	}
	return io.ReadAll(io.LimitReader(f, limit))
}
