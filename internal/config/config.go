// Package config holds run options for judge jobs. Options come from a
// YAML file with SWEEP_* environment overrides, and are passed explicitly
// to every component; nothing in this module reads ambient globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Options configures one run of the iteration engine.
type Options struct {
	// Repositories are the "owner/name" patterns the run sweeps over.
	// Wildcards in either part are allowed; "-owner/name" excludes.
	Repositories []string `yaml:"repositories"`

	// Since is the initial cursor for repositories with no stored marker.
	// Default: 0
	Since int64 `yaml:"since"`

	// Source is the provenance namespace markers are scoped to.
	// Default: "github"
	Source string `yaml:"source"`

	// DBPath is the fact store database path.
	// Default: ".sweep/facts.db"
	DBPath string `yaml:"db"`

	// Lifetime is the wall-clock budget for the whole process, measured
	// from Epoch. Zero means unbounded.
	Lifetime time.Duration `yaml:"lifetime"`

	// Timeout is the budget for a single invocation. Zero means unbounded.
	Timeout time.Duration `yaml:"timeout"`

	// QuotaThreshold is the remaining-request floor below which runs stop.
	// Default: 50
	QuotaThreshold int `yaml:"quota_threshold"`

	// GitHubToken authenticates quota checks. Empty means anonymous.
	// Never read from the file; GITHUB_TOKEN only.
	GitHubToken string `yaml:"-"`

	// Epoch is when the long-lived process started. Set by the entry
	// point, not by configuration files.
	Epoch time.Time `yaml:"-"`
}

// Default returns options with default values and Epoch set to now.
func Default() *Options {
	return &Options{
		Since:          0,
		Source:         "github",
		DBPath:         ".sweep/facts.db",
		QuotaThreshold: 50,
		Epoch:          time.Now(),
	}
}

// Load reads options from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := opts.applyEnv(); err != nil {
		return nil, err
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// applyEnv overlays SWEEP_* variables on top of file values. A variable
// that is set but does not parse is an error: a typo must not silently
// run the process with an unbounded budget.
func (o *Options) applyEnv() error {
	if v := os.Getenv("SWEEP_DB"); v != "" {
		o.DBPath = v
	}
	if v := os.Getenv("SWEEP_SOURCE"); v != "" {
		o.Source = v
	}
	if v := os.Getenv("SWEEP_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_LIFETIME %q: %w", v, err)
		}
		o.Lifetime = d
	}
	if v := os.Getenv("SWEEP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_TIMEOUT %q: %w", v, err)
		}
		o.Timeout = d
	}
	if v := os.Getenv("SWEEP_QUOTA_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_QUOTA_THRESHOLD %q: %w", v, err)
		}
		o.QuotaThreshold = n
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		o.GitHubToken = v
	}
	return nil
}

// Validate checks option ranges.
func (o *Options) Validate() error {
	if o.Source == "" {
		return fmt.Errorf("source must not be empty")
	}
	if o.DBPath == "" {
		return fmt.Errorf("db path must not be empty")
	}
	if o.QuotaThreshold < 0 {
		return fmt.Errorf("quota_threshold must be non-negative, got %d", o.QuotaThreshold)
	}
	if o.Lifetime < 0 {
		return fmt.Errorf("lifetime must be non-negative, got %s", o.Lifetime)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", o.Timeout)
	}
	return nil
}
