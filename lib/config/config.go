// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/ccengine/lib/cron"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "CCENGINE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the engine configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths      PathsConfig      `yaml:"paths"`
	Store      StoreConfig      `yaml:"store"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Log        LogConfig        `yaml:"log"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides holds the fields an environment section may
// override. Zero values leave the base value in place.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Store      *StoreConfig      `yaml:"store,omitempty"`
	Collectors *CollectorsConfig `yaml:"collectors,omitempty"`
	Schedule   *ScheduleConfig   `yaml:"schedule,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for engine data.
	Root string `yaml:"root"`

	// Controls is the directory of control definition files.
	Controls string `yaml:"controls"`

	// Database is the audit store SQLite file.
	Database string `yaml:"database"`
}

// StoreConfig configures the audit store.
type StoreConfig struct {
	PoolSize    int           `yaml:"pool_size"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Synchronous is the SQLite synchronous mode: FULL or NORMAL.
	Synchronous string `yaml:"synchronous"`

	// Compression is the evidence compression: none, lz4, or zstd.
	Compression string `yaml:"compression"`
}

// CollectorsConfig configures evidence collection.
type CollectorsConfig struct {
	// Timeout bounds each collector call.
	Timeout time.Duration `yaml:"timeout"`

	// Parallel collects a control's sources concurrently.
	Parallel bool `yaml:"parallel"`

	// SimulateDrift makes the IAM fixture report CC6.1 as failing.
	SimulateDrift bool `yaml:"simulate_drift"`

	GitHub GitHubConfig `yaml:"github"`
}

// GitHubConfig configures the live GitHub collector. When Enabled is
// false the deterministic fixture is used.
type GitHubConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	// Repository is "owner/name".
	Repository  string   `yaml:"repository"`
	Branches    []string `yaml:"branches"`
	Environment string   `yaml:"environment"`
	RecentPulls int      `yaml:"recent_pulls"`
}

// Token returns the GitHub token from the configured environment
// variable.
func (g GitHubConfig) Token() (string, error) {
	if g.TokenEnv == "" {
		return "", fmt.Errorf("collectors.github.token_env is not set")
	}
	token := os.Getenv(g.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty", g.TokenEnv)
	}
	return token, nil
}

// ScheduleConfig configures the serve loop.
type ScheduleConfig struct {
	// Cron is a 5-field expression or a descriptor such as @daily.
	Cron string `yaml:"cron"`

	// RunTimeout bounds each scheduled run.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// RunOnStart starts one run immediately when serving.
	RunOnStart bool `yaml:"run_on_start"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// Default returns the base configuration the file is merged into.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "ccengine")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     root,
			Controls: "${CCENGINE_ROOT}/controls",
			Database: "${CCENGINE_ROOT}/audit.db",
		},
		Store: StoreConfig{
			PoolSize:    4,
			BusyTimeout: 5 * time.Second,
			Synchronous: "NORMAL",
			Compression: "zstd",
		},
		Collectors: CollectorsConfig{
			Timeout: 2 * time.Minute,
			GitHub: GitHubConfig{
				TokenEnv:    "GITHUB_TOKEN",
				Branches:    []string{"main", "master"},
				Environment: "production",
				RecentPulls: 10,
			},
		},
		Schedule: ScheduleConfig{
			Cron:       "@daily",
			RunTimeout: 30 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by CCENGINE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your ccengine.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over Default, applies the
// environment section, and expands path variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is LoadFile for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides != nil {
		if paths := overrides.Paths; paths != nil {
			setString(&c.Paths.Root, paths.Root)
			setString(&c.Paths.Controls, paths.Controls)
			setString(&c.Paths.Database, paths.Database)
		}
		if store := overrides.Store; store != nil {
			if store.PoolSize > 0 {
				c.Store.PoolSize = store.PoolSize
			}
			if store.BusyTimeout > 0 {
				c.Store.BusyTimeout = store.BusyTimeout
			}
			setString(&c.Store.Synchronous, store.Synchronous)
			setString(&c.Store.Compression, store.Compression)
		}
		if collectors := overrides.Collectors; collectors != nil {
			if collectors.Timeout > 0 {
				c.Collectors.Timeout = collectors.Timeout
			}
			c.Collectors.Parallel = c.Collectors.Parallel || collectors.Parallel
			c.Collectors.SimulateDrift = c.Collectors.SimulateDrift || collectors.SimulateDrift
			github := collectors.GitHub
			c.Collectors.GitHub.Enabled = c.Collectors.GitHub.Enabled || github.Enabled
			setString(&c.Collectors.GitHub.BaseURL, github.BaseURL)
			setString(&c.Collectors.GitHub.TokenEnv, github.TokenEnv)
			setString(&c.Collectors.GitHub.Repository, github.Repository)
			setString(&c.Collectors.GitHub.Environment, github.Environment)
			if len(github.Branches) > 0 {
				c.Collectors.GitHub.Branches = github.Branches
			}
			if github.RecentPulls > 0 {
				c.Collectors.GitHub.RecentPulls = github.RecentPulls
			}
		}
		if schedule := overrides.Schedule; schedule != nil {
			setString(&c.Schedule.Cron, schedule.Cron)
			if schedule.RunTimeout > 0 {
				c.Schedule.RunTimeout = schedule.RunTimeout
			}
			c.Schedule.RunOnStart = c.Schedule.RunOnStart || schedule.RunOnStart
		}
		if log := overrides.Log; log != nil {
			setString(&c.Log.Level, log.Level)
			setString(&c.Log.Format, log.Format)
		}
	}

	if c.Environment == Production {
		c.Store.Synchronous = "FULL"
		c.Collectors.SimulateDrift = false
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CCENGINE_ROOT"] = c.Paths.Root

	c.Paths.Controls = expandVars(c.Paths.Controls, vars)
	c.Paths.Database = expandVars(c.Paths.Database, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, consulting vars
// before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Controls == "" {
		errs = append(errs, fmt.Errorf("paths.controls is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, fmt.Errorf("paths.database is required"))
	}

	if c.Store.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("store.pool_size must be positive, got %d", c.Store.PoolSize))
	}
	if c.Store.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("store.busy_timeout must not be negative"))
	}
	if !slices.Contains([]string{"FULL", "NORMAL"}, strings.ToUpper(c.Store.Synchronous)) {
		errs = append(errs, fmt.Errorf("store.synchronous must be FULL or NORMAL, got %q", c.Store.Synchronous))
	}
	if !slices.Contains([]string{"", "none", "lz4", "zstd"}, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of none, lz4, zstd; got %q", c.Store.Compression))
	}

	if c.Collectors.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("collectors.timeout must be positive"))
	}
	if github := c.Collectors.GitHub; github.Enabled {
		if owner, repo, ok := strings.Cut(github.Repository, "/"); !ok || owner == "" || repo == "" {
			errs = append(errs, fmt.Errorf("collectors.github.repository must be owner/name, got %q", github.Repository))
		}
		if github.TokenEnv == "" {
			errs = append(errs, fmt.Errorf("collectors.github.token_env is required when the GitHub collector is enabled"))
		}
		if github.BaseURL != "" && !strings.HasPrefix(github.BaseURL, "https://") {
			errs = append(errs, fmt.Errorf("collectors.github.base_url must use https, got %q", github.BaseURL))
		}
	}

	if _, err := cron.Parse(c.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
	}
	if c.Schedule.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("schedule.run_timeout must not be negative"))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if !slices.Contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json; got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the directories the configured paths live in.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.Paths.Root, c.Paths.Controls, filepath.Dir(c.Paths.Database)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
