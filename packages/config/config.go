// Package config loads gridcalc settings from an optional YAML file and
// GRIDCALC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.alis.build/alog"
	"gopkg.in/yaml.v3"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

const envPrefix = "GRIDCALC_"

// Config holds the settings shared by the CLI and the HTTP server
type Config struct {
	DatabasePath   string `yaml:"database_path"`
	ListenAddress  string `yaml:"listen_address"`
	DefaultRows    int    `yaml:"default_rows"`
	DefaultColumns int    `yaml:"default_columns"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		DatabasePath:   "gridcalc.db",
		ListenAddress:  ":8080",
		DefaultRows:    spreadsheet.DefaultRowCount,
		DefaultColumns: spreadsheet.DefaultColumnCount,
		LogLevel:       "info",
	}
}

// Load reads path over the defaults, then applies environment overrides. an
// empty path skips the file, a missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envPrefix + "DATABASE_PATH"); ok {
		c.DatabasePath = v
	}
	if v, ok := lookup(envPrefix + "LISTEN_ADDRESS"); ok {
		c.ListenAddress = v
	}
	if v, ok := lookup(envPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	for name, target := range map[string]*int{
		"DEFAULT_ROWS":    &c.DefaultRows,
		"DEFAULT_COLUMNS": &c.DefaultColumns,
	} {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*target = n
	}
	return nil
}

// Validate rejects settings the rest of the program cannot use
func (c Config) Validate() error {
	var errs []error
	if c.DefaultRows <= 0 {
		errs = append(errs, fmt.Errorf("default_rows must be positive, got %d", c.DefaultRows))
	}
	if c.DefaultColumns <= 0 {
		errs = append(errs, fmt.Errorf("default_columns must be positive, got %d", c.DefaultColumns))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var logLevels = map[string]alog.LogLevel{
	"debug":   alog.LevelDebug,
	"info":    alog.LevelInfo,
	"notice":  alog.LevelNotice,
	"warning": alog.LevelWarning,
	"warn":    alog.LevelWarning,
	"error":   alog.LevelError,
}

// ParseLogLevel maps a level name to an alog level, case-insensitively
func ParseLogLevel(name string) (alog.LogLevel, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return alog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// ApplyLogging sets the process-wide log level
func (c Config) ApplyLogging() {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = alog.LevelInfo
	}
	alog.SetLevel(level)
}
