package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/pkg/store"
)

const validConfig = `version: 0
browser_type: chrome
threads: 4
job_timeout: 2m
automation:
  binary: /opt/nightwatch/bin/nightwatch
  base_port: 5000
active_profile: home
profiles:
  home:
    type: kdbx
    sources: [main, work]
  browser:
    type: chrome-gnome
    sources: [chrome]
sources:
  - name: main
    file: vaults/main.kdbx
    blocklist: [example.com]
  - name: work
    file: /srv/work.kdbx
  - name: chrome
    file: ~/.config/google-chrome/Default/Login Data
scripts:
  - dir: scripts
    blocklist: [old.example.js, scripts/legacy.js]
remaps:
  - match: ^accounts\.google\.com$
    key: myaccount.google.com
generator:
  length: 24
  symbols: true
keyring:
  service: Chromium Safe Storage
  account: Chromium
history_dir: history
metrics_file: /var/lib/node_exporter/passup.prom
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "scripts"), 0o700))
	path := filepath.Join(dir, "passup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Valid(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	name, typ := cfg.ActiveProfile()
	assert.Equal(t, "home", name)
	assert.Equal(t, "kdbx", typ)
	assert.Equal(t, "chrome", cfg.BrowserType())
	assert.Equal(t, 4, cfg.Threads())
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout())
	assert.Equal(t, "/opt/nightwatch/bin/nightwatch", cfg.AutomationBinary())
	assert.Equal(t, filepath.Join(dir, "history"), cfg.HistoryDir())
	assert.Equal(t, "/var/lib/node_exporter/passup.prom", cfg.MetricsFile())

	sources := cfg.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, SourceConfig{
		Name:      "main",
		Type:      "kdbx",
		File:      filepath.Join(dir, "vaults", "main.kdbx"),
		Blocklist: []string{"example.com"},
	}, sources[0])
	assert.Equal(t, "/srv/work.kdbx", sources[1].File)

	policy := cfg.GeneratorPolicy()
	assert.Equal(t, 24, policy.Length)
	assert.True(t, policy.Symbols)
	assert.True(t, policy.Lowercase, "unset fields keep their defaults")

	service, account := cfg.Keyring()
	assert.Equal(t, "Chromium Safe Storage", service)
	assert.Equal(t, "Chromium", account)

	assert.Equal(t, []string{filepath.Join(dir, "scripts")}, cfg.ScriptDirs())

	sc := cfg.SchedulerConfig()
	assert.Equal(t, 4, sc.Threads)
	assert.Equal(t, 2*time.Minute, sc.JobTimeout)
	assert.Equal(t, "chrome", sc.Browser)
	assert.Equal(t, 5000, sc.BasePort)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `version: 0
active_profile: pass
profiles:
  pass: {type: pass, sources: [store]}
sources:
  - name: store
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "firefox", cfg.BrowserType())
	assert.Equal(t, 1, cfg.Threads())
	assert.Zero(t, cfg.JobTimeout())
	assert.Equal(t, "nightwatch", cfg.AutomationBinary())
	assert.Empty(t, cfg.HistoryDir())
	assert.Equal(t, 15, cfg.GeneratorPolicy().Length)
	require.Len(t, cfg.Sources(), 1)
	assert.Empty(t, cfg.Sources()[0].File)
}

func TestLoad_RouterFromConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	dir := filepath.Dir(path)
	for _, name := range []string{"myaccount.google.com.js", "old.example.js", "legacy.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", name), nil, 0o600))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	router := cfg.Router()

	route, err := router.Route(0, store.Entry{Site: "https://accounts.google.com/", Username: "u"}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scripts", "myaccount.google.com.js"), route.Script)

	_, err = router.Route(0, store.Entry{Site: "old.example", Username: "u"}, nil)
	assert.Error(t, err, "blocked by file name")
	_, err = router.Route(0, store.Entry{Site: "legacy", Username: "u"}, nil)
	assert.Error(t, err, "blocked by path relative to the config file")
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	base := `version: 0
active_profile: home
profiles:
  home: {type: kdbx, sources: [main]}
sources:
  - name: main
    file: main.kdbx
`
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "invalid yaml", content: "version: 0\nprofiles: [[[\n", want: "invalid YAML syntax"},
		{name: "empty", content: "", want: "configuration file is empty"},
		{name: "unsupported version", content: "version: 999\n" + base[len("version: 0\n"):], want: "schema validation failed"},
		{name: "unknown key", content: base + "colour: blue\n", want: "colour"},
		{name: "bad browser", content: base + "browser_type: safari\n", want: "browser_type"},
		{name: "zero threads", content: base + "threads: 0\n", want: "threads"},
		{name: "unknown profile type", content: `version: 0
active_profile: home
profiles:
  home: {type: lastpass, sources: [main]}
sources: [{name: main, file: x}]
`, want: "schema validation failed"},
		{name: "missing active profile", content: base + "active_profile_typo: x\n", want: "active_profile_typo"},
		{name: "active profile not defined", content: `version: 0
active_profile: work
profiles:
  home: {type: kdbx, sources: [main]}
sources: [{name: main, file: x}]
`, want: "Available profiles: home"},
		{name: "undefined source", content: `version: 0
active_profile: home
profiles:
  home: {type: kdbx, sources: [other]}
sources: [{name: main, file: x}]
`, want: "source not defined"},
		{name: "duplicate source", content: base + "  - name: main\n    file: y\n", want: "duplicate source name"},
		{name: "file required", content: `version: 0
active_profile: home
profiles:
  home: {type: pwsafe, sources: [main]}
sources: [{name: main}]
`, want: "pwsafe sources need a file"},
		{name: "missing script dir", content: base + "scripts: [{dir: nowhere}]\n", want: "script directory does not exist"},
		{name: "bad remap", content: base + "remaps: [{match: '(', key: x}]\n", want: "invalid regular expression"},
		{name: "bad timeout", content: base + "job_timeout: soon\n", want: "invalid duration"},
		{name: "negative timeout", content: base + "job_timeout: -1s\n", want: "invalid duration"},
		{name: "empty charset", content: base + "generator: {numbers: false, lowercase: false, uppercase: false, symbols: false}\n", want: "no character class"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "path", cfgErr.Field)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestConfig_SourcesAreCopies(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	sources := cfg.Sources()
	sources[0].Blocklist[0] = "changed.example"
	sources[0].Name = "changed"

	again := cfg.Sources()
	assert.Equal(t, "main", again[0].Name)
	assert.Equal(t, []string{"example.com"}, again[0].Blocklist)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{in: "db.kdbx", want: "/etc/passup/db.kdbx"},
		{in: "../db.kdbx", want: "/etc/db.kdbx"},
		{in: "/abs/db.kdbx", want: "/abs/db.kdbx"},
		{in: "~/db.kdbx", want: filepath.Join(home, "db.kdbx")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolvePath("/etc/passup", tt.in), tt.in)
	}
}
