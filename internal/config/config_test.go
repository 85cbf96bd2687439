package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	opts := Default()

	assert.Equal(t, int64(0), opts.Since)
	assert.Equal(t, "github", opts.Source)
	assert.Equal(t, ".sweep/facts.db", opts.DBPath)
	assert.Equal(t, 50, opts.QuotaThreshold)
	assert.Zero(t, opts.Lifetime)
	assert.Zero(t, opts.Timeout)
	assert.False(t, opts.Epoch.IsZero())
	assert.NoError(t, opts.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "github", opts.Source)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	content := `
repositories:
  - octocat/*
  - -octocat/attic
since: 100
source: gitlab
db: /tmp/facts.db
lifetime: 4h
timeout: 10m
quota_threshold: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"octocat/*", "-octocat/attic"}, opts.Repositories)
	assert.Equal(t, int64(100), opts.Since)
	assert.Equal(t, "gitlab", opts.Source)
	assert.Equal(t, "/tmp/facts.db", opts.DBPath)
	assert.Equal(t, 4*time.Hour, opts.Lifetime)
	assert.Equal(t, 10*time.Minute, opts.Timeout)
	assert.Equal(t, 80, opts.QuotaThreshold)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWEEP_DB", "/tmp/override.db")
	t.Setenv("SWEEP_TIMEOUT", "90s")
	t.Setenv("GITHUB_TOKEN", "tok-123")

	opts, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", opts.DBPath)
	assert.Equal(t, 90*time.Second, opts.Timeout)
	assert.Equal(t, "tok-123", opts.GitHubToken)
}

func TestInvalidEnvOverridesFailLoudly(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"malformed timeout", "SWEEP_TIMEOUT", "10 minutes"},
		{"malformed lifetime", "SWEEP_LIFETIME", "soon"},
		{"malformed threshold", "SWEEP_QUOTA_THRESHOLD", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
			require.Error(t, err)
			// The error names the offending variable and value.
			assert.Contains(t, err.Error(), tt.key)
			assert.Contains(t, err.Error(), tt.value)
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"empty source", func(o *Options) { o.Source = "" }},
		{"empty db path", func(o *Options) { o.DBPath = "" }},
		{"negative threshold", func(o *Options) { o.QuotaThreshold = -1 }},
		{"negative lifetime", func(o *Options) { o.Lifetime = -time.Second }},
		{"negative timeout", func(o *Options) { o.Timeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Default()
			tt.mutate(opts)
			assert.Error(t, opts.Validate())
		})
	}
}
