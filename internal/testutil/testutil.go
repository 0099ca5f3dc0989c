package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ListFiles returns the sorted base names of regular files in dir matching
// pattern.
func ListFiles(t *testing.T, dir, pattern string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		require.NoError(t, err)
		if info.Mode().IsRegular() {
			names = append(names, filepath.Base(m))
		}
	}
	sort.Strings(names)
	return names
}

// VisibleFiles lists the regular files in dir that are not hidden, which
// excludes the index record, lock and journal of an output location.
func VisibleFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	for _, name := range ListFiles(t, dir, "*") {
		if !strings.HasPrefix(name, ".") {
			out = append(out, name)
		}
	}
	return out
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
