package filesystem

import (
	"path/filepath"
	"strings"
)

// ResolvePath converts a file:// URI or bare path to a clean local path.
func ResolvePath(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	if uri == "" {
		return ""
	}
	return filepath.Clean(uri)
}
