package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"skeeterdeleter/pkg/criteria"
)

// Config holds all configuration options for skeeterdeleter
type Config struct {
	// Bluesky account and endpoint
	Bluesky BlueskyConfig `yaml:"bluesky" json:"bluesky"`

	// Retention rules
	Retention RetentionConfig `yaml:"retention" json:"retention"`

	// Per-run traversal settings
	Run RunConfig `yaml:"run" json:"run"`

	// Request spacing and retry configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Resume state location
	State StateConfig `yaml:"state" json:"state"`

	// Pre-deletion archive
	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BlueskyConfig holds account credentials and the PDS endpoint
type BlueskyConfig struct {
	Handle      string        `yaml:"handle" json:"handle"`
	AppPassword string        `yaml:"app_password" json:"app_password"`
	PDS         string        `yaml:"pds" json:"pds"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// RetentionConfig holds the deletion thresholds. Zero disables a rule.
type RetentionConfig struct {
	StaleDays        int      `yaml:"stale_days" json:"stale_days"`
	ViralReposts     int      `yaml:"viral_reposts" json:"viral_reposts"`
	RepostUndoDays   int      `yaml:"repost_undo_days" json:"repost_undo_days"`
	ProtectedDomains []string `yaml:"protected_domains" json:"protected_domains"`
}

// RunConfig holds traversal settings for a single invocation
type RunConfig struct {
	PagesPerRun      int    `yaml:"pages_per_run" json:"pages_per_run"`
	PageSize         int    `yaml:"page_size" json:"page_size"`
	FixedLikesCursor string `yaml:"fixed_likes_cursor" json:"fixed_likes_cursor"`
	LikesFloorCursor string `yaml:"likes_floor_cursor" json:"likes_floor_cursor"`
	AutoConfirm      bool   `yaml:"auto_confirm" json:"auto_confirm"`
	Verbosity        int    `yaml:"verbosity" json:"verbosity"`
}

// RateLimitConfig holds request spacing and retry configuration
type RateLimitConfig struct {
	Interval    time.Duration `yaml:"interval" json:"interval"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// StateConfig holds the resume state location
type StateConfig struct {
	Path string `yaml:"path" json:"path"`
}

// ArchiveConfig holds archive settings
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Bluesky: BlueskyConfig{
			PDS:     "https://bsky.social",
			Timeout: 120 * time.Second,
		},
		Run: RunConfig{
			PagesPerRun: 100,
			PageSize:    100,
		},
		RateLimit: RateLimitConfig{
			Interval:    750 * time.Millisecond,
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    60 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			Directory: "archive",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if handle := os.Getenv("SKEETER_HANDLE"); handle != "" {
		c.Bluesky.Handle = handle
	}
	if password := os.Getenv("SKEETER_APP_PASSWORD"); password != "" {
		c.Bluesky.AppPassword = password
	}
	if pds := os.Getenv("SKEETER_PDS"); pds != "" {
		c.Bluesky.PDS = pds
	}

	intVars := map[string]*int{
		"SKEETER_STALE_DAYS":       &c.Retention.StaleDays,
		"SKEETER_VIRAL_REPOSTS":    &c.Retention.ViralReposts,
		"SKEETER_REPOST_UNDO_DAYS": &c.Retention.RepostUndoDays,
		"SKEETER_PAGES_PER_RUN":    &c.Run.PagesPerRun,
	}
	for name, target := range intVars {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*target = val
	}

	if domains := os.Getenv("SKEETER_PROTECTED_DOMAINS"); domains != "" {
		c.Retention.ProtectedDomains = SplitDomains(domains)
	}
	if interval := os.Getenv("SKEETER_REQUEST_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid SKEETER_REQUEST_INTERVAL: %w", err)
		}
		c.RateLimit.Interval = d
	}
	if statePath := os.Getenv("SKEETER_STATE_PATH"); statePath != "" {
		c.State.Path = statePath
	}
	if archiveDir := os.Getenv("SKEETER_ARCHIVE_DIR"); archiveDir != "" {
		c.Archive.Directory = archiveDir
	}
	if logLevel := os.Getenv("SKEETER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".skeeterdeleter.yaml",
		".skeeterdeleter.yml",
		filepath.Join(home, ".config", "skeeterdeleter", "config.yaml"),
		filepath.Join(home, ".config", "skeeterdeleter", "config.yml"),
		filepath.Join(home, ".skeeterdeleter.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Credentials are checked by
// the caller since they may come from a credential store instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Bluesky.PDS == "" {
		errs = append(errs, errors.New("PDS URL is required"))
	}
	if c.Bluesky.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Retention.StaleDays < 0 {
		errs = append(errs, errors.New("stale days cannot be negative"))
	}
	if c.Retention.ViralReposts < 0 {
		errs = append(errs, errors.New("viral reposts cannot be negative"))
	}
	if c.Retention.RepostUndoDays < 0 {
		errs = append(errs, errors.New("repost undo days cannot be negative"))
	}

	if c.Run.PagesPerRun <= 0 {
		errs = append(errs, errors.New("pages per run must be positive"))
	}
	if c.Run.PageSize <= 0 || c.Run.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}
	if c.Run.Verbosity < 0 || c.Run.Verbosity > 2 {
		errs = append(errs, errors.New("verbosity must be 0, 1 or 2"))
	}

	if c.RateLimit.Interval < 0 {
		errs = append(errs, errors.New("request interval cannot be negative"))
	}
	if c.RateLimit.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.RateLimit.BaseDelay < 0 || c.RateLimit.MaxDelay < c.RateLimit.BaseDelay {
		errs = append(errs, errors.New("retry delays must satisfy 0 <= base_delay <= max_delay"))
	}

	if c.Archive.Enabled && c.Archive.Directory == "" {
		errs = append(errs, errors.New("archive directory is required when archiving is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if handle, ok := flags["handle"].(string); ok && handle != "" {
		c.Bluesky.Handle = handle
	}
	if password, ok := flags["app-password"].(string); ok && password != "" {
		c.Bluesky.AppPassword = password
	}
	if stale, ok := flags["stale-limit"].(int); ok {
		c.Retention.StaleDays = max(0, stale)
	}
	if viral, ok := flags["max-reposts"].(int); ok {
		c.Retention.ViralReposts = max(0, viral)
	}
	if repostAge, ok := flags["repost-age"].(int); ok {
		c.Retention.RepostUndoDays = max(0, repostAge)
	}
	if domains, ok := flags["domains-to-protect"].(string); ok {
		c.Retention.ProtectedDomains = SplitDomains(domains)
	}
	if cursor, ok := flags["fixed-likes-cursor"].(string); ok && cursor != "" {
		c.Run.FixedLikesCursor = cursor
	}
	if floor, ok := flags["likes-floor"].(string); ok && floor != "" {
		c.Run.LikesFloorCursor = floor
	}
	if pages, ok := flags["pages"].(int); ok && pages > 0 {
		c.Run.PagesPerRun = pages
	}
	if yes, ok := flags["yes"].(bool); ok && yes {
		c.Run.AutoConfirm = true
	}
	if verbosity, ok := flags["verbosity"].(int); ok {
		c.Run.Verbosity = verbosity
	}
	if skip, ok := flags["skip-archive"].(bool); ok && skip {
		c.Archive.Enabled = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Policy returns the retention rules as an immutable policy
func (c *Config) Policy() criteria.Policy {
	return criteria.PolicyFromDays(
		c.Retention.StaleDays,
		c.Retention.ViralReposts,
		c.Retention.RepostUndoDays,
		c.Retention.ProtectedDomains,
	)
}

// RunOptions are the traversal settings of a single run
type RunOptions struct {
	PagesPerRun      int
	PageSize         int
	FixedLikesCursor string
	LikesFloorCursor string
	AutoConfirm      bool
	Archive          bool
	ArchiveDir       string
}

// RunOptions snapshots the run settings
func (c *Config) RunOptions() RunOptions {
	return RunOptions{
		PagesPerRun:      c.Run.PagesPerRun,
		PageSize:         c.Run.PageSize,
		FixedLikesCursor: c.Run.FixedLikesCursor,
		LikesFloorCursor: c.Run.LikesFloorCursor,
		AutoConfirm:      c.Run.AutoConfirm,
		Archive:          c.Archive.Enabled,
		ArchiveDir:       c.Archive.Directory,
	}
}

// SplitDomains parses a comma separated domain list, dropping empty entries
func SplitDomains(raw string) []string {
	var domains []string
	for _, part := range strings.Split(raw, ",") {
		if d := strings.TrimSpace(part); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".skeeterdeleter.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
