package rotation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/systmms/passup/pkg/store"
)

func TestDumpModel(t *testing.T) {
	model := store.New([]store.Entry{
		{Site: "https://github.com", Username: "alice", OldSecret: "old", NewSecret: "fresh", Identity: store.PassIdentity("github.com/alice")},
		{Site: "https://gitlab.com", Username: "bob", OldSecret: "same", NewSecret: "same"},
	})

	var buf bytes.Buffer
	require.NoError(t, DumpModel(&buf, "main", "/vault/main.kdbx", model))

	var doc dumpDoc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "main", doc.Source)
	assert.Equal(t, "/vault/main.kdbx", doc.Path)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, dumpEntry{
		Site: "https://github.com", Username: "alice",
		OldSecret: "old", NewSecret: "fresh", Rotated: true,
		Identity: "pass:github.com/alice",
	}, doc.Entries[0])
	assert.False(t, doc.Entries[1].Rotated)
	assert.Empty(t, doc.Entries[1].Identity)
}
