// Package config loads passup.yaml into an immutable Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/generator"
	"github.com/systmms/passup/internal/rotation"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "passup.yaml"

// Definition mirrors the passup.yaml document.
type Definition struct {
	Version       int                `yaml:"version"`
	BrowserType   string             `yaml:"browser_type"`
	Threads       int                `yaml:"threads"`
	JobTimeout    string             `yaml:"job_timeout"`
	Automation    Automation         `yaml:"automation"`
	ActiveProfile string             `yaml:"active_profile"`
	Profiles      map[string]Profile `yaml:"profiles"`
	Sources       []Source           `yaml:"sources"`
	Scripts       []ScriptDir        `yaml:"scripts"`
	Remaps        []Remap            `yaml:"remaps"`
	Generator     generator.Policy   `yaml:"generator"`
	Keyring       Keyring            `yaml:"keyring"`
	HistoryDir    string             `yaml:"history_dir"`
	MetricsFile   string             `yaml:"metrics_file"`
}

// Automation configures the automation subprocess.
type Automation struct {
	Binary   string `yaml:"binary"`
	BasePort int    `yaml:"base_port"`
}

// Profile groups sources of one container type.
type Profile struct {
	Type    string   `yaml:"type"`
	Sources []string `yaml:"sources"`
}

// Source is one container file.
type Source struct {
	Name      string   `yaml:"name"`
	File      string   `yaml:"file"`
	Blocklist []string `yaml:"blocklist"`
}

// ScriptDir is a directory of site scripts.
type ScriptDir struct {
	Dir       string   `yaml:"dir"`
	Blocklist []string `yaml:"blocklist"`
}

// Remap sends domains matching Match to the script named Key.
type Remap struct {
	Match string `yaml:"match"`
	Key   string `yaml:"key"`
}

// Keyring overrides the keyring item browser passphrases are read from.
type Keyring struct {
	Service string `yaml:"service"`
	Account string `yaml:"account"`
}

// SourceConfig is a resolved source of the active profile.
type SourceConfig struct {
	Name      string
	Type      string
	File      string
	Blocklist []string
}

// Config is the validated, immutable configuration of one run. Accessors
// return copies.
type Config struct {
	path       string
	def        Definition
	jobTimeout time.Duration
	remaps     []rotation.Remap
	sources    []SourceConfig
}

// Load reads, validates and resolves the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Create passup.yaml or point --config at an existing file",
			}
		}
		return nil, dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse validates data. Relative paths in it are resolved against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	def := Definition{
		BrowserType: "firefox",
		Threads:     1,
		Generator:   generator.DefaultPolicy(),
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("cannot decode configuration: %v", err),
			Suggestion: "Check the value types against the documented format",
		}
	}
	def.resolvePaths(baseDir)

	c := &Config{path: baseDir, def: def}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Definition) resolvePaths(baseDir string) {
	for i := range d.Sources {
		if d.Sources[i].File != "" {
			d.Sources[i].File = resolvePath(baseDir, d.Sources[i].File)
		}
	}
	for i := range d.Scripts {
		d.Scripts[i].Dir = resolvePath(baseDir, d.Scripts[i].Dir)
		for j, b := range d.Scripts[i].Blocklist {
			// Bare file names are matched by name, paths by location.
			if strings.ContainsRune(b, filepath.Separator) {
				d.Scripts[i].Blocklist[j] = resolvePath(baseDir, b)
			}
		}
	}
	if d.HistoryDir != "" {
		d.HistoryDir = resolvePath(baseDir, d.HistoryDir)
	}
	if d.MetricsFile != "" {
		d.MetricsFile = resolvePath(baseDir, d.MetricsFile)
	}
}

// resolvePath expands a leading ~ and anchors relative paths at baseDir.
func resolvePath(baseDir, p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// BaseDir is the directory relative paths were resolved against.
func (c *Config) BaseDir() string { return c.path }

// BrowserType is firefox or chrome.
func (c *Config) BrowserType() string { return c.def.BrowserType }

// Threads is the worker pool size.
func (c *Config) Threads() int { return c.def.Threads }

// JobTimeout bounds every automation subprocess; 0 means no limit.
func (c *Config) JobTimeout() time.Duration { return c.jobTimeout }

// ActiveProfile returns the name and type of the profile to run.
func (c *Config) ActiveProfile() (name, profileType string) {
	return c.def.ActiveProfile, c.def.Profiles[c.def.ActiveProfile].Type
}

// Sources returns the sources of the active profile in profile order.
func (c *Config) Sources() []SourceConfig {
	out := make([]SourceConfig, len(c.sources))
	for i, s := range c.sources {
		s.Blocklist = append([]string(nil), s.Blocklist...)
		out[i] = s
	}
	return out
}

// ScriptDirs returns the configured script directories in search order.
func (c *Config) ScriptDirs() []string {
	dirs := make([]string, len(c.def.Scripts))
	for i, s := range c.def.Scripts {
		dirs[i] = s.Dir
	}
	return dirs
}

// GeneratorPolicy is the policy new secrets are generated with.
func (c *Config) GeneratorPolicy() generator.Policy { return c.def.Generator }

// Keyring returns the configured keyring item; both empty selects the
// browser defaults.
func (c *Config) Keyring() (service, account string) {
	return c.def.Keyring.Service, c.def.Keyring.Account
}

// AutomationBinary is the automation executable.
func (c *Config) AutomationBinary() string {
	if c.def.Automation.Binary == "" {
		return "nightwatch"
	}
	return c.def.Automation.Binary
}

// HistoryDir is where rotation history is kept, empty when disabled.
func (c *Config) HistoryDir() string { return c.def.HistoryDir }

// MetricsFile is the Prometheus textfile to write, empty when disabled.
func (c *Config) MetricsFile() string { return c.def.MetricsFile }

// Router builds the script router.
func (c *Config) Router() *rotation.Router {
	dirs := make([]rotation.ScriptDir, len(c.def.Scripts))
	for i, s := range c.def.Scripts {
		dirs[i] = rotation.ScriptDir{Dir: s.Dir, Blocklist: append([]string(nil), s.Blocklist...)}
	}
	return rotation.NewRouter(dirs, append([]rotation.Remap(nil), c.remaps...))
}

// SchedulerConfig builds the scheduler settings.
func (c *Config) SchedulerConfig() rotation.SchedulerConfig {
	return rotation.SchedulerConfig{
		Threads:    c.def.Threads,
		JobTimeout: c.jobTimeout,
		Binary:     c.AutomationBinary(),
		Browser:    c.def.BrowserType,
		BasePort:   c.def.Automation.BasePort,
	}
}

func compileRemap(i int, r Remap) (rotation.Remap, error) {
	re, err := regexp.Compile(r.Match)
	if err != nil {
		return rotation.Remap{}, dserrors.ConfigError{
			Field:      fmt.Sprintf("remaps[%d].match", i),
			Value:      r.Match,
			Message:    fmt.Sprintf("invalid regular expression: %v", err),
			Suggestion: "Use Go regular expression syntax, e.g. ^accounts\\.google\\.com$",
		}
	}
	return rotation.Remap{Pattern: re, Key: r.Key}, nil
}
