package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 750*time.Millisecond, config.RateLimit.Interval)
	assert.Equal(t, 3, config.RateLimit.MaxAttempts)
	assert.Equal(t, 100, config.Run.PagesPerRun)
	assert.Equal(t, 100, config.Run.PageSize)
	assert.Equal(t, 0, config.Retention.StaleDays, "stale rule must be off by default")
	assert.Equal(t, 0, config.Retention.ViralReposts, "viral rule must be off by default")
	assert.True(t, config.Archive.Enabled)
	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SKEETER_HANDLE", "alice.bsky.social")
	t.Setenv("SKEETER_APP_PASSWORD", "abcd-efgh-ijkl-mnop")
	t.Setenv("SKEETER_STALE_DAYS", "30")
	t.Setenv("SKEETER_VIRAL_REPOSTS", "20")
	t.Setenv("SKEETER_PROTECTED_DOMAINS", "example.com, blog.example.org ,")
	t.Setenv("SKEETER_REQUEST_INTERVAL", "1s")
	t.Setenv("SKEETER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "alice.bsky.social", config.Bluesky.Handle)
	assert.Equal(t, "abcd-efgh-ijkl-mnop", config.Bluesky.AppPassword)
	assert.Equal(t, 30, config.Retention.StaleDays)
	assert.Equal(t, 20, config.Retention.ViralReposts)
	assert.Equal(t, []string{"example.com", "blog.example.org"}, config.Retention.ProtectedDomains)
	assert.Equal(t, time.Second, config.RateLimit.Interval)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("SKEETER_STALE_DAYS", "thirty")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SKEETER_STALE_DAYS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "negative stale days", mutate: func(c *Config) { c.Retention.StaleDays = -1 }, wantError: "stale days"},
		{name: "zero pages", mutate: func(c *Config) { c.Run.PagesPerRun = 0 }, wantError: "pages per run"},
		{name: "page size above api maximum", mutate: func(c *Config) { c.Run.PageSize = 101 }, wantError: "page size"},
		{name: "bad verbosity", mutate: func(c *Config) { c.Run.Verbosity = 3 }, wantError: "verbosity"},
		{name: "zero attempts", mutate: func(c *Config) { c.RateLimit.MaxAttempts = 0 }, wantError: "max attempts"},
		{name: "inverted delays", mutate: func(c *Config) { c.RateLimit.MaxDelay = time.Millisecond }, wantError: "retry delays"},
		{name: "archive without directory", mutate: func(c *Config) { c.Archive.Directory = "" }, wantError: "archive directory"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantError: "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"stale-limit":        50,
		"max-reposts":        -5,
		"repost-age":         7,
		"domains-to-protect": "example.com,news.example.org",
		"fixed-likes-cursor": "3kabc",
		"likes-floor":        "3jzzz",
		"pages":              10,
		"yes":                true,
		"skip-archive":       true,
		"verbosity":          2,
	})

	assert.Equal(t, 50, config.Retention.StaleDays)
	assert.Equal(t, 0, config.Retention.ViralReposts, "negative thresholds are clamped to zero")
	assert.Equal(t, 7, config.Retention.RepostUndoDays)
	assert.Equal(t, []string{"example.com", "news.example.org"}, config.Retention.ProtectedDomains)
	assert.Equal(t, "3kabc", config.Run.FixedLikesCursor)
	assert.Equal(t, "3jzzz", config.Run.LikesFloorCursor)
	assert.Equal(t, 10, config.Run.PagesPerRun)
	assert.True(t, config.Run.AutoConfirm)
	assert.False(t, config.Archive.Enabled)
	assert.Equal(t, 2, config.Run.Verbosity)
}

func TestLoadFromFileAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := DefaultConfig()
	original.Bluesky.Handle = "bob.bsky.social"
	original.Retention.StaleDays = 90
	original.Retention.ProtectedDomains = []string{"example.com"}
	require.NoError(t, original.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "bob.bsky.social", loaded.Bluesky.Handle)
	assert.Equal(t, 90, loaded.Retention.StaleDays)
	assert.Equal(t, []string{"example.com"}, loaded.Retention.ProtectedDomains)
	assert.Equal(t, 750*time.Millisecond, loaded.RateLimit.Interval)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention:\n  stale_days: 10\n  viral_reposts: 5\n"), 0600))

	t.Setenv("SKEETER_VIRAL_REPOSTS", "15")

	config, err := Load(path, map[string]interface{}{"stale-limit": 40})
	require.NoError(t, err)
	assert.Equal(t, 40, config.Retention.StaleDays, "flag beats file")
	assert.Equal(t, 15, config.Retention.ViralReposts, "env beats file")
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention: [unclosed"), 0600))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestPolicyAndRunOptions(t *testing.T) {
	config := DefaultConfig()
	config.Retention = RetentionConfig{StaleDays: 30, ViralReposts: 12, RepostUndoDays: 7, ProtectedDomains: []string{"WWW.Example.com"}}
	config.Run.FixedLikesCursor = "3kfixed"
	config.Archive.Enabled = false

	policy := config.Policy()
	assert.Equal(t, 30*24*time.Hour, policy.StaleAge())
	assert.Equal(t, 12, policy.ViralReposts())
	assert.Equal(t, 7*24*time.Hour, policy.RepostUndoAge())
	assert.Equal(t, []string{"example.com"}, policy.ProtectedDomains())

	opts := config.RunOptions()
	assert.Equal(t, 100, opts.PagesPerRun)
	assert.Equal(t, "3kfixed", opts.FixedLikesCursor)
	assert.False(t, opts.Archive)
}
