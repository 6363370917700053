package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/passup/internal/prompt"
	"github.com/systmms/passup/internal/rotation/storage"
	"github.com/systmms/passup/tests/testutil"
)

type fixture struct {
	dir    string
	g      *Globals
	out    *bytes.Buffer
	mock   *testutil.MockCommandExecutor
	logger *testutil.TestLogger
}

// newFixture lays out a pass store with two entries, one site script and a
// config that records history and metrics.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	builder := testutil.NewTestConfig(t).
		WithProfile("mine", "pass", "store").
		WithSource("store", "store").
		WithScriptDir("scripts").
		With("threads", 2).
		With("automation", map[string]any{"base_port": 24100}).
		With("history_dir", "history").
		With("metrics_file", "passup.prom")
	configPath := builder.Write()
	dir := builder.Dir()

	testutil.WriteFiles(t, dir, map[string]string{
		"store/github.com/alice.gpg":    "",
		"store/unknown.example/bob.gpg": "",
		"scripts/github.com.js":         "module.exports = {}",
	})

	mock := testutil.NewMockCommandExecutor()
	mock.AddResponse("pass show", testutil.PassMockResponses{}.Show("old-password"))
	mock.AddResponse("pass insert", testutil.MockResponse{})
	mock.AddResponse("nightwatch", testutil.MockResponse{})

	logger := testutil.NewTestLogger(t)
	out := &bytes.Buffer{}
	return &fixture{
		dir: dir,
		g: &Globals{
			ConfigPath: configPath,
			Logger:     logger.Logger,
			Out:        out,
			Executor:   mock,
			Prompter:   prompt.NewSequence(),
			LookPath:   func(file string) (string, error) { return "/usr/bin/" + file, nil },
		},
		out:    out,
		mock:   mock,
		logger: logger,
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd.Execute()
}

func TestRotateCommand(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, execute(t, NewRotateCommand(f.g)))

	output := f.out.String()
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "✓ rotated")

	nightwatch := f.mock.GetCalls("nightwatch")
	require.Len(t, nightwatch, 1)
	assert.Equal(t, filepath.Join(f.dir, "scripts", "github.com.js"), nightwatch[0].Args[3])
	assert.Equal(t, "alice", nightwatch[0].Args[5])
	assert.Equal(t, "old-password", nightwatch[0].Args[6])
	newPassword := nightwatch[0].Args[7]
	assert.Len(t, newPassword, 15)

	var inserts []testutil.RecordedCall
	for _, c := range f.mock.GetCalls("pass") {
		if c.Args[0] == "insert" {
			inserts = append(inserts, c)
		}
	}
	require.Len(t, inserts, 1)
	assert.Equal(t, "github.com/alice", inserts[0].Args[len(inserts[0].Args)-1])
	assert.True(t, strings.HasPrefix(inserts[0].Stdin, newPassword+"\n"))
	assert.Contains(t, inserts[0].Stdin, "url: https://example.com")

	testutil.AssertNoSecretLeak(t, f.logger.GetOutput(), newPassword, "old-password")

	metrics, err := os.ReadFile(filepath.Join(f.dir, "passup.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `passup_jobs_total{outcome="success",source="store"} 1`)

	history, err := storage.NewFileStorage(filepath.Join(f.dir, "history")).GetHistory("store", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "rotated", history[0].Status)
}

func TestRotateCommand_DryRun(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, execute(t, NewRotateCommand(f.g), "--dry-run"))

	assert.Equal(t, 0, len(f.mock.GetCalls("nightwatch")))
	for _, c := range f.mock.GetCalls("pass") {
		assert.Equal(t, "show", c.Args[0])
	}
	assert.Contains(t, f.out.String(), "dry_run")
	f.logger.AssertContains(t, "Would rotate https://github.com (alice)")
	_, err := os.Stat(filepath.Join(f.dir, "passup.prom"))
	assert.True(t, os.IsNotExist(err))
}

func TestRotateCommand_ScriptFailureKeepsPassword(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResponse("nightwatch", testutil.MockResponse{Stderr: []byte("timeout waiting for #password"), ExitCode: 1})

	err := execute(t, NewRotateCommand(f.g))
	require.Error(t, err)
	assert.Contains(t, f.out.String(), "✗ failed")
	for _, c := range f.mock.GetCalls("pass") {
		assert.NotEqual(t, "insert", c.Args[0])
	}
}

func TestRotateCommand_BadConfig(t *testing.T) {
	f := newFixture(t)
	f.g.ConfigPath = filepath.Join(f.dir, "missing.yaml")

	err := execute(t, NewRotateCommand(f.g))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
	assert.Zero(t, f.mock.CallCount())
}

func TestDoctorCommand(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, execute(t, NewDoctorCommand(f.g)))

	output := f.out.String()
	assert.Contains(t, output, "CHECK")
	assert.Contains(t, output, "/usr/bin/nightwatch")
	assert.Contains(t, output, "/usr/bin/firefox")
	assert.Contains(t, output, "/usr/bin/pass")
	assert.Contains(t, output, "(1 scripts)")
	assert.Contains(t, output, "Summary: 5/5 checks passed")
}

func TestDoctorCommand_MissingDependencies(t *testing.T) {
	f := newFixture(t)
	f.g.LookPath = func(file string) (string, error) {
		if file == "nightwatch" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + file, nil
	}
	require.NoError(t, os.RemoveAll(filepath.Join(f.dir, "store")))

	err := execute(t, NewDoctorCommand(f.g))
	require.Error(t, err)

	output := f.out.String()
	assert.Contains(t, output, "npm install -g nightwatch")
	assert.Contains(t, output, "✗ missing")
	assert.Contains(t, output, "Summary: 3/5 checks passed")
}

func TestCheckBrowser(t *testing.T) {
	g := &Globals{LookPath: func(file string) (string, error) {
		if file == "chromium" {
			return "/usr/bin/chromium", nil
		}
		return "", fmt.Errorf("%s not found", file)
	}}

	assert.Equal(t, CheckResult{Name: "browser", Status: "ok", Message: "/usr/bin/chromium"}, checkBrowser(g, "chrome"))
	assert.Equal(t, "missing", checkBrowser(g, "firefox").Status)
}

func TestHistoryCommand(t *testing.T) {
	f := newFixture(t)
	fs := storage.NewFileStorage(filepath.Join(f.dir, "history"))
	now := time.Now()
	require.NoError(t, fs.SaveHistory(&storage.HistoryEntry{RunID: "r1", Timestamp: now.Add(-time.Hour), Source: "store", Status: "rotated", Parsed: 2}))
	require.NoError(t, fs.SaveHistory(&storage.HistoryEntry{RunID: "r2", Timestamp: now, Source: "store", Status: "failed", Error: "unlock failed"}))
	require.NoError(t, fs.SaveHistory(&storage.HistoryEntry{RunID: "r3", Timestamp: now, Source: "other", Status: "rotated"}))

	t.Run("table", func(t *testing.T) {
		f.out.Reset()
		require.NoError(t, execute(t, NewHistoryCommand(f.g), "store"))
		output := f.out.String()
		assert.Contains(t, output, "TIMESTAMP")
		assert.Contains(t, output, "unlock failed")
		assert.NotContains(t, output, "other")
	})

	t.Run("json with status filter", func(t *testing.T) {
		f.out.Reset()
		require.NoError(t, execute(t, NewHistoryCommand(f.g), "--status", "rotated", "--format", "json"))
		var entries []storage.HistoryEntry
		require.NoError(t, json.Unmarshal(f.out.Bytes(), &entries))
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, "rotated", e.Status)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		err := execute(t, NewHistoryCommand(f.g), "--format", "xml")
		assert.ErrorContains(t, err, "unknown format")
	})
}

func TestHistoryCommand_Prune(t *testing.T) {
	f := newFixture(t)
	fs := storage.NewFileStorage(filepath.Join(f.dir, "history"))
	require.NoError(t, fs.SaveHistory(&storage.HistoryEntry{RunID: "old", Timestamp: time.Now().Add(-48 * time.Hour), Source: "store", Status: "rotated"}))
	require.NoError(t, fs.SaveHistory(&storage.HistoryEntry{RunID: "new", Timestamp: time.Now(), Source: "store", Status: "partial"}))

	require.NoError(t, execute(t, NewHistoryCommand(f.g), "--prune", "24h", "--format", "json"))

	var entries []storage.HistoryEntry
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].RunID)
}

func TestHistoryCommand_Empty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, execute(t, NewHistoryCommand(f.g)))
	assert.Contains(t, f.out.String(), "No rotation history found")
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3", "abc123", "2026-01-02")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "passup 1.2.3 (commit: abc123, built: 2026-01-02)\n", out.String())
}
