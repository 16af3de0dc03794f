package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/hakim/inspector/internal/logging"
	"github.com/hakim/inspector/internal/models"
	"github.com/hakim/inspector/internal/scanner"
)

// EnvPrefix prefixes every environment override, e.g. INSPECTOR_SCAN_RATE
const EnvPrefix = "INSPECTOR"

// Config represents the application configuration
type Config struct {
	TokenFile string       `mapstructure:"token_file" yaml:"token_file"`
	OutputDir string       `mapstructure:"output_dir" yaml:"output_dir"`
	DBPath    string       `mapstructure:"db_path" yaml:"db_path"`
	Scan      ScanSettings `mapstructure:"scan" yaml:"scan"`
	DNS       DNSConfig    `mapstructure:"dns" yaml:"dns"`
	HTTP      HTTPConfig   `mapstructure:"http" yaml:"http"`
	Log       LogConfig    `mapstructure:"log" yaml:"log"`
	Scope     ScopeConfig  `mapstructure:"scope" yaml:"scope"`
	Notify    NotifyConfig `mapstructure:"notify" yaml:"notify"`
}

// ScanSettings holds the resource bounds of a scan
type ScanSettings struct {
	Rate        float64       `mapstructure:"rate" yaml:"rate"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Ports is a port spec such as "22,80,8000-8010". Empty means the
	// built-in default list.
	Ports   string `mapstructure:"ports" yaml:"ports"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// DNSConfig selects the nameservers used for record lookups
type DNSConfig struct {
	Servers []string `mapstructure:"servers" yaml:"servers"`
}

// HTTPConfig tunes the HEAD probe
type HTTPConfig struct {
	UserAgent          string `mapstructure:"user_agent" yaml:"user_agent"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	MaxRedirects       int    `mapstructure:"max_redirects" yaml:"max_redirects"`
}

// LogConfig controls diagnostic logging
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// ScopeConfig restricts which targets may be scanned
type ScopeConfig struct {
	Domains []string `mapstructure:"domains" yaml:"domains"`
	CIDRs   []string `mapstructure:"cidrs" yaml:"cidrs"`
}

// NotifyConfig configures the completion webhook
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// Load reads configuration from a YAML file, environment and defaults.
// If path is empty, searches for inspector.yaml in the current directory,
// ./configs and ~/.config/inspector/. A missing file in the search path is
// not an error; an explicit path that cannot be read is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("inspector")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "inspector"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so env overrides are seen by Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("token_file", d.TokenFile)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("scan.rate", d.Scan.Rate)
	v.SetDefault("scan.concurrency", d.Scan.Concurrency)
	v.SetDefault("scan.timeout", d.Scan.Timeout)
	v.SetDefault("scan.ports", d.Scan.Ports)
	v.SetDefault("scan.profile", d.Scan.Profile)
	v.SetDefault("dns.servers", d.DNS.Servers)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.insecure_skip_verify", d.HTTP.InsecureSkipVerify)
	v.SetDefault("http.max_redirects", d.HTTP.MaxRedirects)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("scope.domains", d.Scope.Domains)
	v.SetDefault("scope.cidrs", d.Scope.CIDRs)
	v.SetDefault("notify.webhook_url", d.Notify.WebhookURL)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.TokenFile == "" {
		errs = append(errs, errors.New("token_file cannot be empty"))
	}

	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir cannot be empty"))
	}

	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path cannot be empty"))
	}

	if err := c.ScanConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scan: %w", err))
	}

	if _, err := scanner.ParsePorts(c.Scan.Ports); err != nil {
		errs = append(errs, fmt.Errorf("scan.ports: %w", err))
	}

	if c.HTTP.MaxRedirects < 0 {
		errs = append(errs, errors.New("http.max_redirects cannot be negative"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// ScanConfig returns the resource bounds for one scan
func (c *Config) ScanConfig() models.ScanConfig {
	return models.ScanConfig{
		RateLimit:      c.Scan.Rate,
		MaxConcurrency: c.Scan.Concurrency,
		Timeout:        c.Scan.Timeout,
	}
}
