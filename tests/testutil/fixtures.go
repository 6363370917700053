package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFiles creates each file of files under root, with parent
// directories. Keys are slash separated relative paths.
//
// Example usage:
//
//	WriteFiles(t, dir, map[string]string{
//	    "scripts/github.com.js": "module.exports = {}",
//	    "store/github.com/alice.gpg": "",
//	})
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700), "Failed to create directory for %s", name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "Failed to write %s", name)
	}
}
