// Package scanner discovers documentation files under a corpus root,
// streaming results as they are found.
package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// FileInfo contains metadata about a discovered document.
type FileInfo struct {
	Path    string    // Relative to the corpus root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// RootDir is the corpus root directory to scan.
	RootDir string

	// ExcludeDirs names directories to skip anywhere in the tree, in
	// addition to hidden directories. The index directory should be here.
	ExcludeDirs []string

	// MaxFileSize is the maximum file size to include in bytes
	// (0 = 10MB default).
	MaxFileSize int64
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// supportedExtensions are the documentation formats aki indexes.
var supportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".txt":      true,
	".rst":      true,
}

// IsSupported reports whether the path has an indexable documentation
// extension.
func IsSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}
