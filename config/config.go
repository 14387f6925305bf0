package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kwscan/internal/domain"
)

// ErrNoKeywords is returned by Validate when no candidate keywords are set.
var ErrNoKeywords = errors.New("no keywords configured")

// Config holds all configuration for kwscan.
type Config struct {
	Scan    ScanConfig    `yaml:"scan"`
	Sources SourcesConfig `yaml:"sources"`
	Cache   CacheConfig   `yaml:"cache"`
	Report  ReportConfig  `yaml:"report"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ScanConfig holds the analysis configuration.
type ScanConfig struct {
	Keywords      []string `yaml:"keywords"`
	Workers       int      `yaml:"workers"` // 0 = number of CPUs
	MaxTokens     int      `yaml:"max_tokens"`
	MaxNesting    int      `yaml:"max_nesting"`
	Strict        bool     `yaml:"strict"`
	CollectLabels bool     `yaml:"collect_labels"`
	Encoding      string   `yaml:"encoding"`
}

// SourcesConfig selects the files to analyze.
type SourcesConfig struct {
	Includes   []string `yaml:"includes"`
	Excludes   []string `yaml:"excludes"`
	Extensions []string `yaml:"extensions"`
	Zipballs   bool     `yaml:"zipballs"` // read *.zip packages instead of a source tree
}

// CacheConfig holds the per-file result cache configuration.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"` // empty = .kwscan/cache.db under the sources root
	MemoSize int    `yaml:"memo_size"`
}

// ReportConfig holds report rendering configuration.
type ReportConfig struct {
	Format           string   `yaml:"format"` // "table", "json" or "yaml"
	WellKnownVendors []string `yaml:"well_known_vendors"`
	MaxVendors       int      `yaml:"max_vendors"`
	MaxExamples      int      `yaml:"max_examples"`
	MaxErrors        int      `yaml:"max_errors"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Prometheus textfile path, empty = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	limits := domain.DefaultLimits()
	return &Config{
		Scan: ScanConfig{
			Workers:    0,
			MaxTokens:  4_000_000,
			MaxNesting: 1024,
			Strict:     true,
			Encoding:   "utf-8",
		},
		Sources: SourcesConfig{
			Extensions: []string{"php", "php7", "php8"},
			Excludes:   []string{"**/.git/", "**/.kwscan/", "**/node_modules/"},
		},
		Cache: CacheConfig{
			Enabled:  false,
			MemoSize: 4096,
		},
		Report: ReportConfig{
			Format:           "table",
			WellKnownVendors: append([]string(nil), domain.DefaultWellKnownVendors...),
			MaxVendors:       limits.Vendors,
			MaxExamples:      limits.Examples,
			MaxErrors:        limits.Errors,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for kwscan.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "kwscan.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".kwscan", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv loads dir/.env (without overriding variables already set) and
// applies KWSCAN_* environment overrides, e.g. KWSCAN_SCAN_WORKERS=4 or
// KWSCAN_SCAN_KEYWORDS=with,await.
func (c *Config) ApplyEnv(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("KWSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setList := func(key string, dst *[]string) {
		if v.IsSet(key) {
			*dst = splitList(v.GetString(key))
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	setList("scan.keywords", &c.Scan.Keywords)
	setInt("scan.workers", &c.Scan.Workers)
	setInt("scan.max_tokens", &c.Scan.MaxTokens)
	setInt("scan.max_nesting", &c.Scan.MaxNesting)
	setBool("scan.strict", &c.Scan.Strict)
	setBool("scan.collect_labels", &c.Scan.CollectLabels)
	setString("scan.encoding", &c.Scan.Encoding)
	setList("sources.extensions", &c.Sources.Extensions)
	setBool("sources.zipballs", &c.Sources.Zipballs)
	setBool("cache.enabled", &c.Cache.Enabled)
	setString("cache.path", &c.Cache.Path)
	setInt("cache.memo_size", &c.Cache.MemoSize)
	setString("report.format", &c.Report.Format)
	setList("report.well_known_vendors", &c.Report.WellKnownVendors)
	setString("metrics.textfile", &c.Metrics.Textfile)
	setString("logging.level", &c.Logging.Level)
	setString("logging.format", &c.Logging.Format)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration before a run.
func (c *Config) Validate() error {
	if len(c.Scan.Keywords) == 0 {
		return ErrNoKeywords
	}
	if _, err := domain.ParseKeywords(c.Scan.Keywords); err != nil {
		return err
	}
	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers)
	}
	if c.Scan.MaxTokens < 0 || c.Scan.MaxNesting < 0 {
		return fmt.Errorf("scan limits must not be negative")
	}
	switch c.Report.Format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown report format %q", c.Report.Format)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// Workers returns the effective worker count.
func (c *Config) Workers() int {
	if c.Scan.Workers > 0 {
		return c.Scan.Workers
	}
	return runtime.NumCPU()
}

// Limits returns the result caps.
func (c *Config) Limits() domain.Limits {
	return domain.Limits{
		Vendors:  c.Report.MaxVendors,
		Examples: c.Report.MaxExamples,
		Errors:   c.Report.MaxErrors,
	}
}

// CacheDBPath returns the path to the result cache database.
func (c *Config) CacheDBPath(dir string) string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(dir, ".kwscan", "cache.db")
}

// EnsureDir ensures the .kwscan directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".kwscan"), 0755)
}
