// Package ingest finds statement PDFs on disk and watches inbox directories.
package ingest

import (
	"path/filepath"
	"strings"
)

// defaultExts are the extensions picked up when none are configured (lowercase, without '.').
var defaultExts = map[string]struct{}{
	"pdf": {},
}

// ExtSet builds an extension set from user input such as ".PDF" or "pdf".
// An empty list yields the defaults.
func ExtSet(exts []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out[e] = struct{}{}
		}
	}
	if len(out) == 0 {
		return defaultExts
	}
	return out
}

func allowed(path string, exts map[string]struct{}) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := exts[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
