package secretstores

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/secretstores/psafe3"
	"github.com/systmms/passup/pkg/store"
	"github.com/systmms/passup/tests/testutil"
)

const pwsafePassphrase = "pwsafe master"

var (
	recordA = uuid.MustParse("6f2b0e1c-6a52-4c1f-9a57-4b0f8f5b7c01")
	recordB = uuid.MustParse("0b3c9d7e-2f1a-4a9b-8c6d-5e4f3a2b1c0d")
	recordC = uuid.MustParse("9a8b7c6d-5e4f-4a3b-9c2d-1e0f0a1b2c3d")
)

func pwsafeFields() []psafe3.Field {
	return []psafe3.Field{
		psafe3.VersionField(0x030d),
		{Type: 0x04, Data: []byte("20240101")}, // last save timestamp
		{Type: 0x06, Data: []byte("Password Safe V3.64")},
		{Type: psafe3.FieldEnd},

		{Type: psafe3.FieldUUID, Data: recordA[:]},
		{Type: psafe3.FieldTitle, Data: []byte("forum")},
		{Type: psafe3.FieldUsername, Data: []byte("alice")},
		{Type: psafe3.FieldPassword, Data: []byte("forum-old")},
		{Type: 0x42, Data: []byte("custom field survives")},
		{Type: psafe3.FieldURL, Data: []byte("www.forum.example")},
		{Type: psafe3.FieldEnd},

		{Type: psafe3.FieldUUID, Data: recordB[:]},
		{Type: psafe3.FieldTitle, Data: []byte("bank")},
		{Type: psafe3.FieldUsername, Data: []byte("bob")},
		{Type: psafe3.FieldPassword, Data: []byte("bank-old")},
		{Type: psafe3.FieldURL, Data: []byte("https://bank.example/login")},
		{Type: psafe3.FieldNotes, Data: []byte("pin is elsewhere")},
		{Type: psafe3.FieldEnd},

		// No URL: kept in the file, not rotated.
		{Type: psafe3.FieldUUID, Data: recordC[:]},
		{Type: psafe3.FieldTitle, Data: []byte("wifi")},
		{Type: psafe3.FieldPassword, Data: []byte("wifi-pw")},
		{Type: psafe3.FieldEnd},
	}
}

func writePWSafe(t *testing.T, path string, fields []psafe3.Field) {
	t.Helper()
	var buf bytes.Buffer
	w, err := psafe3.NewWriter(&buf, []byte(pwsafePassphrase), 4096)
	require.NoError(t, err)
	for _, f := range fields {
		require.NoError(t, w.WriteField(f))
	}
	require.NoError(t, w.Finish())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func readPWSafe(t *testing.T, path string) ([]psafe3.Field, uint32) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := psafe3.NewReader(f, []byte(pwsafePassphrase))
	require.NoError(t, err)
	var out []psafe3.Field
	for {
		field, err := r.ReadField()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, field)
	}
	require.NoError(t, r.Verify())
	return out, r.Iterations()
}

func TestPWSafeRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.psafe3")
	fields := pwsafeFields()
	writePWSafe(t, path, fields)

	opts, prompter, logger := testOptions(t, path, "wrong", pwsafePassphrase)
	engine := NewPWSafeEngine(opts)
	defer engine.Close()

	require.NoError(t, engine.Unlock(context.Background()))
	assert.Len(t, prompter.Asked, 2)

	model, err := engine.Parse(context.Background())
	require.NoError(t, err)
	entries := model.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "https://www.forum.example", entries[0].Site)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, "forum-old", entries[0].OldSecret)
	assert.Equal(t, store.PWSafeIdentity(recordA), entries[0].Identity)
	assert.Equal(t, store.PWSafeIdentity(recordB), entries[1].Identity)
	logger.AssertContains(t, `"wifi"`)

	// First job succeeded, second failed.
	updated := store.New([]store.Entry{entries[0], entries[1].Reverted()})
	require.NoError(t, engine.Rewrite(context.Background(), updated))

	got, iter := readPWSafe(t, path)
	assert.Equal(t, uint32(4096), iter)
	require.Len(t, got, len(fields))
	for i := range fields {
		want := fields[i]
		if want.Type == psafe3.FieldPassword && string(want.Data) == "forum-old" {
			want = psafe3.Field{Type: psafe3.FieldPassword, Data: []byte("rotated-1")}
		}
		assert.Equal(t, want.Type, got[i].Type, "field %d", i)
		assert.Equal(t, string(want.Data), string(got[i].Data), "field %d", i)
	}

	_, err = os.Stat(path + backupSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPWSafeRoundTripWithoutSuccesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.psafe3")
	writePWSafe(t, path, pwsafeFields())
	before, _ := readPWSafe(t, path)

	opts, _, _ := testOptions(t, path, pwsafePassphrase)
	engine := NewPWSafeEngine(opts)
	defer engine.Close()
	require.NoError(t, engine.Unlock(context.Background()))
	model, err := engine.Parse(context.Background())
	require.NoError(t, err)

	var reverted []store.Entry
	for _, e := range model.Entries() {
		reverted = append(reverted, e.Reverted())
	}
	require.NoError(t, engine.Rewrite(context.Background(), store.New(reverted)))

	after, _ := readPWSafe(t, path)
	assert.Equal(t, before, after)
}

func TestPWSafeRewriteRestoresOriginalOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.psafe3")
	writePWSafe(t, path, pwsafeFields())
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	opts, _, _ := testOptions(t, path, pwsafePassphrase)
	engine := NewPWSafeEngine(opts)
	require.NoError(t, engine.Unlock(context.Background()))
	model, err := engine.Parse(context.Background())
	require.NoError(t, err)

	// A destroyed passphrase makes the writer fail after the original moved.
	engine.passphrase.Destroy()
	err = engine.Rewrite(context.Background(), model)
	require.Error(t, err)

	testutil.AssertFileUnchanged(t, path, original)
	_, err = os.Stat(path + backupSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPWSafeCorruptContainer(t *testing.T) {
	t.Run("header without version", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.psafe3")
		writePWSafe(t, path, []psafe3.Field{{Type: psafe3.FieldTitle, Data: []byte("x")}, {Type: psafe3.FieldEnd}})

		opts, _, _ := testOptions(t, path, pwsafePassphrase)
		engine := NewPWSafeEngine(opts)
		require.NoError(t, engine.Unlock(context.Background()))
		_, err := engine.Parse(context.Background())
		assert.ErrorIs(t, err, psafe3.ErrCorrupt)
	})

	t.Run("unterminated record", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.psafe3")
		writePWSafe(t, path, []psafe3.Field{
			psafe3.VersionField(0x030d), {Type: psafe3.FieldEnd},
			{Type: psafe3.FieldTitle, Data: []byte("x")},
		})

		opts, _, _ := testOptions(t, path, pwsafePassphrase)
		engine := NewPWSafeEngine(opts)
		require.NoError(t, engine.Unlock(context.Background()))
		_, err := engine.Parse(context.Background())
		assert.ErrorIs(t, err, psafe3.ErrCorrupt)
	})

	t.Run("not a container", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.psafe3")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

		opts, prompter, _ := testOptions(t, path, pwsafePassphrase)
		err := NewPWSafeEngine(opts).Unlock(context.Background())
		assert.ErrorIs(t, err, psafe3.ErrNotPWSafe)
		assert.Len(t, prompter.Asked, 1)
	})
}

func TestPWSafeIdentityMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.psafe3")
	writePWSafe(t, path, pwsafeFields())
	before, _ := readPWSafe(t, path)

	opts, _, logger := testOptions(t, path, pwsafePassphrase)
	engine := NewPWSafeEngine(opts)
	defer engine.Close()
	require.NoError(t, engine.Unlock(context.Background()))
	_, err := engine.Parse(context.Background())
	require.NoError(t, err)

	foreign := store.Entry{Site: "https://x", Username: "u", OldSecret: "a", NewSecret: "b", Identity: store.KDBXIdentity{}}
	require.NoError(t, engine.Rewrite(context.Background(), store.New([]store.Entry{foreign})))

	logger.AssertContains(t, dserrors.ErrIdentityMismatch.Error())
	after, _ := readPWSafe(t, path)
	assert.Equal(t, before, after)
}
