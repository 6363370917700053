// Package testutil provides test utilities and helpers for passup tests.
//
// This package contains shared test infrastructure including a configuration
// builder, a command executor mock, file fixtures and a capturing logger.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestConfigBuilder provides a fluent API for writing passup.yaml files.
//
// Relative paths in the written file resolve against the builder's
// directory, so fixtures written with WriteFiles(t, b.Dir(), ...) line up.
//
// Example usage:
//
//	path := NewTestConfig(t).
//	    WithProfile("home", "kdbx", "main").
//	    WithSource("main", "main.kdbx").
//	    WithScriptDir("scripts").
//	    Write()
type TestConfigBuilder struct {
	t   *testing.T
	dir string
	doc map[string]any
}

// NewTestConfig starts from a version 0 document with no profiles.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		t:   t,
		dir: t.TempDir(),
		doc: map[string]any{
			"version":  0,
			"profiles": map[string]any{},
			"sources":  []any{},
		},
	}
}

// Dir is the directory the configuration is written to.
func (b *TestConfigBuilder) Dir() string {
	return b.dir
}

// WithProfile adds a profile and makes it the active one.
func (b *TestConfigBuilder) WithProfile(name, profileType string, sources ...string) *TestConfigBuilder {
	b.doc["profiles"].(map[string]any)[name] = map[string]any{"type": profileType, "sources": sources}
	b.doc["active_profile"] = name
	return b
}

// WithSource adds a source. An empty file is omitted.
func (b *TestConfigBuilder) WithSource(name, file string, blocklist ...string) *TestConfigBuilder {
	src := map[string]any{"name": name}
	if file != "" {
		src["file"] = file
	}
	if len(blocklist) > 0 {
		src["blocklist"] = blocklist
	}
	b.doc["sources"] = append(b.doc["sources"].([]any), src)
	return b
}

// WithScriptDir adds a script directory and creates it.
func (b *TestConfigBuilder) WithScriptDir(dir string, blocklist ...string) *TestConfigBuilder {
	full := dir
	if !filepath.IsAbs(full) {
		full = filepath.Join(b.dir, dir)
	}
	require.NoError(b.t, os.MkdirAll(full, 0o700))

	entry := map[string]any{"dir": dir}
	if len(blocklist) > 0 {
		entry["blocklist"] = blocklist
	}
	scripts, _ := b.doc["scripts"].([]any)
	b.doc["scripts"] = append(scripts, entry)
	return b
}

// With sets any other top-level key.
func (b *TestConfigBuilder) With(key string, value any) *TestConfigBuilder {
	b.doc[key] = value
	return b
}

// Write stores the document as passup.yaml and returns its path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	data, err := yaml.Marshal(b.doc)
	require.NoError(b.t, err, "Failed to marshal test config")

	path := filepath.Join(b.dir, "passup.yaml")
	require.NoError(b.t, os.WriteFile(path, data, 0o600), "Failed to write test config")
	return path
}
