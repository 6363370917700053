package testutil

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSecretRedacted verifies that a secret value does not appear in a
// string and that the [REDACTED] marker does.
//
// Example usage:
//
//	AssertSecretRedacted(t, result.Output, entry.NewSecret)
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in output", secretValue)
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker when secret is used")
}

// AssertNoSecretLeak verifies that none of secrets appears in output.
// Unlike AssertSecretRedacted it does not expect a marker, so it also fits
// output that never mentioned the secrets.
func AssertNoSecretLeak(t *testing.T, output string, secrets ...string) {
	t.Helper()

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		assert.NotContains(t, output, secret,
			"Secret %q should never be printed, but appears in output", secret)
	}
}

// AssertFileUnchanged verifies that the file at path still holds want byte
// for byte.
func AssertFileUnchanged(t *testing.T, path string, want []byte) {
	t.Helper()

	got, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read %s", path)
	assert.True(t, bytes.Equal(want, got), "%s was modified (%d bytes, want %d)", path, len(got), len(want))
}
