package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"
)

// go-keyring's mock provider is process global, so these tests run serially.

func TestSecretServiceProvider_Candidates(t *testing.T) {
	gokeyring.MockInit()
	require.NoError(t, gokeyring.Set("Chromium Safe Storage", "Chromium", "chromium-secret"))

	p := NewSecretServiceProvider("", "")

	pw, err := p.Passphrase("chromium")
	require.NoError(t, err)
	assert.Equal(t, "chromium-secret", pw)

	// chrome falls back to the chromium item when its own is absent
	pw, err = p.Passphrase("chrome")
	require.NoError(t, err)
	assert.Equal(t, "chromium-secret", pw)

	require.NoError(t, gokeyring.Set("Chrome Safe Storage", "Chrome", "chrome-secret"))
	pw, err = p.Passphrase("chrome")
	require.NoError(t, err)
	assert.Equal(t, "chrome-secret", pw)
}

func TestSecretServiceProvider_Override(t *testing.T) {
	gokeyring.MockInit()
	require.NoError(t, gokeyring.Set("Brave Safe Storage", "Brave", "brave-secret"))

	pw, err := NewSecretServiceProvider("Brave Safe Storage", "Brave").Passphrase("chrome")
	require.NoError(t, err)
	assert.Equal(t, "brave-secret", pw)
}

func TestSecretServiceProvider_NotFound(t *testing.T) {
	gokeyring.MockInit()

	_, err := NewSecretServiceProvider("", "").Passphrase("chrome")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []Item{{Service: "Vivaldi Safe Storage", Account: "Vivaldi"}}, Candidates("vivaldi"))
	assert.Equal(t, "Chrome Safe Storage", Candidates("")[0].Service)
}

func TestStatic(t *testing.T) {
	pw, err := Static("x").Passphrase("chrome")
	require.NoError(t, err)
	assert.Equal(t, "x", pw)

	_, err = Static("").Passphrase("chrome")
	assert.ErrorIs(t, err, ErrNotFound)
}
