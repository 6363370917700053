package secretstores

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	t.Run("SupportedTypes", func(t *testing.T) {
		assert.Equal(t, []string{"chrome", "chrome-gnome", "chrome-kde", "kdbx", "pass", "pwsafe"}, registry.SupportedTypes())
	})

	t.Run("IsSupported", func(t *testing.T) {
		assert.True(t, registry.IsSupported("kdbx"))
		assert.False(t, registry.IsSupported("firefox"))
	})

	t.Run("Create", func(t *testing.T) {
		tests := []struct {
			profileType string
			want        interface{}
		}{
			{"kdbx", &KDBXEngine{}},
			{"pwsafe", &PWSafeEngine{}},
			{"chrome", &ChromeEngine{}},
			{"chrome-gnome", &ChromeEngine{}},
			{"pass", &PassEngine{}},
		}
		for _, tt := range tests {
			t.Run(tt.profileType, func(t *testing.T) {
				engine, err := registry.Create(tt.profileType, Options{Name: "main", Path: "/tmp/db"})
				require.NoError(t, err)
				assert.IsType(t, tt.want, engine)
				assert.Equal(t, "main", engine.Name())
				assert.Equal(t, "/tmp/db", engine.Path())
			})
		}
	})

	t.Run("keyring selection", func(t *testing.T) {
		plain, err := registry.Create("chrome", Options{Path: "x"})
		require.NoError(t, err)
		assert.False(t, plain.(*ChromeEngine).useKeyring)

		kde, err := registry.Create("chrome-kde", Options{Path: "x"})
		require.NoError(t, err)
		assert.True(t, kde.(*ChromeEngine).useKeyring)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := registry.Create("bitwarden", Options{})
		assert.EqualError(t, err, "unknown profile type: bitwarden")
	})

	t.Run("NeedsFile", func(t *testing.T) {
		assert.True(t, NeedsFile("kdbx"))
		assert.False(t, NeedsFile("pass"))
	})
}
