// Package config loads console settings from a YAML file, environment
// variables and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Setting keys, shared by flags, ASTRA_* environment variables and viper.
const (
	KeyConfig        = "config"
	KeyServer        = "server"
	KeyTimeout       = "timeout"
	KeyProxy         = "proxy"
	KeyInsecure      = "insecure"
	KeyMaxRPS        = "max-rps"
	KeyUploadWorkers = "upload-workers"
	KeyJournal       = "journal"
	KeyVerbose       = "verbose"
	KeyFormat        = "format"
)

// EnvPrefix prefixes environment overrides, e.g. ASTRA_SERVER.
const EnvPrefix = "ASTRA"

// DefaultServer is the backend address used when none is configured.
const DefaultServer = "http://localhost:8000"

// Config holds every console setting.
type Config struct {
	Server             string        `yaml:"server"`
	Timeout            time.Duration `yaml:"timeout"`
	Proxy              string        `yaml:"proxy"`
	InsecureSkipVerify bool          `yaml:"insecure"`
	MaxRPS             float64       `yaml:"max_rps"`
	UploadWorkers      int           `yaml:"upload_workers"`
	Journal            string        `yaml:"journal"`
	Verbose            int           `yaml:"verbose"`
	Format             string        `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server:        DefaultServer,
		Timeout:       30 * time.Second,
		UploadWorkers: 3,
		Verbose:       1,
		Format:        "text",
	}
}

// Load reads a YAML file over the defaults. Keys the file leaves out keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then the file
// named by the config key (if any), then every key explicitly set as a
// flag or environment variable.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if path := v.GetString(KeyConfig); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Overlay(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay copies the keys set in v onto c.
func (c *Config) Overlay(v *viper.Viper) {
	if v.IsSet(KeyServer) {
		c.Server = v.GetString(KeyServer)
	}
	if v.IsSet(KeyTimeout) {
		c.Timeout = v.GetDuration(KeyTimeout)
	}
	if v.IsSet(KeyProxy) {
		c.Proxy = v.GetString(KeyProxy)
	}
	if v.IsSet(KeyInsecure) {
		c.InsecureSkipVerify = v.GetBool(KeyInsecure)
	}
	if v.IsSet(KeyMaxRPS) {
		c.MaxRPS = v.GetFloat64(KeyMaxRPS)
	}
	if v.IsSet(KeyUploadWorkers) {
		c.UploadWorkers = v.GetInt(KeyUploadWorkers)
	}
	if v.IsSet(KeyJournal) {
		c.Journal = v.GetString(KeyJournal)
	}
	if v.IsSet(KeyVerbose) {
		c.Verbose = v.GetInt(KeyVerbose)
	}
	if v.IsSet(KeyFormat) {
		c.Format = v.GetString(KeyFormat)
	}
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server: %q", c.Server)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("invalid max_rps: %g", c.MaxRPS)
	}
	if c.UploadWorkers < 1 {
		return fmt.Errorf("invalid upload_workers: %d", c.UploadWorkers)
	}
	if c.Verbose < 0 || c.Verbose > 3 {
		return fmt.Errorf("invalid verbose: %d (want 0-3)", c.Verbose)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format: %s", c.Format)
	}
	return nil
}

// NewViper returns a viper instance reading ASTRA_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}
