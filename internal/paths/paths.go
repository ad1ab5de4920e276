// Package paths provides common path handling utilities for cowrap.
package paths

import (
	"path/filepath"
	"strings"
)

// GeneratedSuffix is appended to an input's base name to form its default output.
const GeneratedSuffix = "-gen.c"

// DefaultOutput returns the generated file path for an input declaration file.
// For example, "include/block/block.h" becomes "include/block/block-gen.c".
func DefaultOutput(input string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), name+GeneratedSuffix)
}

// TempPath returns the sibling file an output is written to before being
// renamed into place.
func TempPath(output string) string {
	return filepath.Join(filepath.Dir(output), "."+filepath.Base(output)+".tmp")
}

// IsGenerated reports whether path looks like a file produced by DefaultOutput.
func IsGenerated(path string) bool {
	return strings.HasSuffix(path, GeneratedSuffix)
}
