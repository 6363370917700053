package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/generator"
	"github.com/systmms/passup/internal/secretstores"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// validateSchema checks the raw YAML document against the embedded schema.
func validateSchema(raw interface{}) error {
	if raw == nil {
		return dserrors.ConfigError{
			Message:    "configuration file is empty",
			Suggestion: "Add at least version, active_profile, profiles and sources",
		}
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return dserrors.ConfigError{
			Message:    fmt.Sprintf("configuration cannot be represented as JSON: %v", err),
			Suggestion: "Use string keys only",
		}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var messages []string
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	sort.Strings(messages)
	return dserrors.ConfigError{
		Message:    "schema validation failed:\n  - " + strings.Join(messages, "\n  - "),
		Suggestion: "Compare your passup.yaml with the documented format",
	}
}

// validate performs the checks the schema cannot express and fills the
// derived fields of c.
func (c *Config) validate() error {
	def := c.def

	if def.JobTimeout != "" {
		d, err := time.ParseDuration(def.JobTimeout)
		if err != nil || d < 0 {
			return dserrors.ConfigError{
				Field:      "job_timeout",
				Value:      def.JobTimeout,
				Message:    "invalid duration",
				Suggestion: "Use a Go duration such as 90s or 5m; 0 disables the timeout",
			}
		}
		c.jobTimeout = d
	}

	if _, err := generator.NewPasswordGenerator(def.Generator); err != nil {
		return dserrors.ConfigError{
			Field:      "generator",
			Message:    err.Error(),
			Suggestion: "Enable at least one character class and use a length that fits the strict rule",
		}
	}

	profile, ok := def.Profiles[def.ActiveProfile]
	if !ok {
		return dserrors.ConfigError{
			Field:      "active_profile",
			Value:      def.ActiveProfile,
			Message:    "profile not found",
			Suggestion: fmt.Sprintf("Available profiles: %s", strings.Join(profileNames(def.Profiles), ", ")),
		}
	}

	byName := make(map[string]Source, len(def.Sources))
	for i, s := range def.Sources {
		if _, dup := byName[s.Name]; dup {
			return dserrors.ConfigError{
				Field:      fmt.Sprintf("sources[%d].name", i),
				Value:      s.Name,
				Message:    "duplicate source name",
				Suggestion: "Give every source a unique name",
			}
		}
		byName[s.Name] = s
	}

	for i, name := range profile.Sources {
		src, ok := byName[name]
		if !ok {
			return dserrors.ConfigError{
				Field:      fmt.Sprintf("profiles.%s.sources[%d]", def.ActiveProfile, i),
				Value:      name,
				Message:    "source not defined",
				Suggestion: "Add the source to the sources: list",
			}
		}
		if src.File == "" && secretstores.NeedsFile(profile.Type) {
			return dserrors.ConfigError{
				Field:      fmt.Sprintf("sources.%s.file", name),
				Message:    fmt.Sprintf("%s sources need a file", profile.Type),
				Suggestion: "Set file: to the container path",
			}
		}
		c.sources = append(c.sources, SourceConfig{
			Name:      src.Name,
			Type:      profile.Type,
			File:      src.File,
			Blocklist: src.Blocklist,
		})
	}

	for i, s := range def.Scripts {
		info, err := os.Stat(s.Dir)
		if err != nil || !info.IsDir() {
			return dserrors.ConfigError{
				Field:      fmt.Sprintf("scripts[%d].dir", i),
				Value:      s.Dir,
				Message:    "script directory does not exist",
				Suggestion: "Create the directory or fix the path",
			}
		}
	}

	for i, r := range def.Remaps {
		remap, err := compileRemap(i, r)
		if err != nil {
			return err
		}
		c.remaps = append(c.remaps, remap)
	}

	return nil
}

func profileNames(profiles map[string]Profile) []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
