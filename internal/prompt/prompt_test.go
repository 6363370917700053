package prompt

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	t.Parallel()

	seq := NewSequence("wrong", "right")

	pw, err := seq.Passphrase("db: ")
	require.NoError(t, err)
	assert.Equal(t, "wrong", pw)

	pw, err = seq.Passphrase("db: ")
	require.NoError(t, err)
	assert.Equal(t, "right", pw)

	_, err = seq.Passphrase("db: ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, seq.Asked, 3)
}

func TestTerminalPrompter_PipedInput(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	_, err = w.WriteString("first\nsecond")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	p := &TerminalPrompter{in: r, out: &out}

	pw, err := p.Passphrase("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "first", pw)

	pw, err = p.Passphrase("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "second", pw)

	_, err = p.Passphrase("Password: ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "Password: Password: Password: ", out.String())
}
