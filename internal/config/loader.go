package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the registry file name looked up in the current
// directory.
const DefaultConfigFile = "noticescan.yaml"

// XDGConfigFile is the registry file name inside the XDG config directory.
const XDGConfigFile = "config.yaml"

// DefaultEnvFile holds secrets such as the Redis password and cookies.
const DefaultEnvFile = ".env"

// EnvPrefix starts every environment override.
const EnvPrefix = "NOTICESCAN_"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads the site registry from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a site registry.
func ParseConfig(data []byte) (*File, error) {
	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse site registry: %w", err)
	}
	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}
	return &cf, nil
}

// FindConfigFile searches for the site registry in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for noticescan.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), XDGConfigFile)
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}
	return ""
}

// LoadEnvFile loads KEY=value pairs from path into the process
// environment without replacing variables that are already set. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from NOTICESCAN_* environment variables.
// Callers apply it before flag parsing so that flags still win.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"CONFIG":         &c.ConfigFilePath,
		"OUTPUT":         &c.OutputDir,
		"STATE_DIR":      &c.StateDir,
		"STORE":          &c.Store,
		"REDIS_ADDR":     &c.RedisAddr,
		"REDIS_PASSWORD": &c.RedisPassword,
		"PROXY":          &c.Proxy,
		"USER_AGENT":     &c.UserAgent,
		"METRICS_ADDR":   &c.MetricsAddr,
		"BROWSER_PATH":   &c.BrowserPath,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB %q: %w", EnvPrefix, v, err)
		}
		c.RedisDB = db
	}
	return nil
}
