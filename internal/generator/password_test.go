package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasswordGenerator_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  Policy
		wantErr string
	}{
		{name: "default", policy: DefaultPolicy()},
		{name: "zero length", policy: Policy{Length: 0, Lowercase: true}, wantErr: "must be positive"},
		{name: "no classes", policy: Policy{Length: 10}, wantErr: ErrEmptyCharset.Error()},
		{name: "strict too short", policy: Policy{Length: 2, Lowercase: true, Uppercase: true, Numbers: true, Strict: true}, wantErr: "too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPasswordGenerator(tt.policy)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPasswordGenerator_HonoursPolicy(t *testing.T) {
	t.Parallel()

	gen, err := NewPasswordGenerator(DefaultPolicy())
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		pw, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, pw, 15)
		assert.True(t, strings.ContainsAny(pw, lowercase), pw)
		assert.True(t, strings.ContainsAny(pw, uppercase), pw)
		assert.True(t, strings.ContainsAny(pw, numbers), pw)
		assert.False(t, strings.ContainsAny(pw, similar), pw)
		assert.False(t, strings.ContainsAny(pw, symbols), pw)
		seen[pw] = true
	}
	assert.Greater(t, len(seen), 190, "passwords should not repeat")
}

func TestPasswordGenerator_SymbolsOnly(t *testing.T) {
	t.Parallel()

	gen, err := NewPasswordGenerator(Policy{Length: 40, Symbols: true})
	require.NoError(t, err)

	pw, err := gen.Generate()
	require.NoError(t, err)
	for _, r := range pw {
		assert.True(t, strings.ContainsRune(symbols, r), "unexpected %q", r)
	}
}
