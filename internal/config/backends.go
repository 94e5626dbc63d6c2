package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendProfile holds the tunable per-backend settings: retry policy, call
// timeout, outbound rate and the reliability weight used by verification.
type BackendProfile struct {
	Enabled       bool          `yaml:"enabled"`
	Reliability   float64       `yaml:"reliability"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Timeout       time.Duration `yaml:"timeout"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

type backendsFile struct {
	Backends map[string]BackendProfile `yaml:"backends"`
}

// DefaultBackendProfiles returns the built-in profiles for the three adapters.
func DefaultBackendProfiles() map[string]BackendProfile {
	base := BackendProfile{
		Enabled:       true,
		MaxAttempts:   3,
		Timeout:       8 * time.Second,
		BackoffBase:   200 * time.Millisecond,
		BackoffMax:    2 * time.Second,
		RatePerSecond: 5,
		Burst:         5,
	}

	general := base
	general.Reliability = 0.8

	community := base
	community.Reliability = 0.5

	deep := base
	deep.Reliability = 0.7
	deep.MaxAttempts = 2
	deep.Timeout = 60 * time.Second
	deep.RatePerSecond = 1
	deep.Burst = 2

	return map[string]BackendProfile{
		"general-search":       general,
		"community-discussion": community,
		"deep-research":        deep,
	}
}

// LoadBackendProfiles returns the defaults overlaid with the YAML file at
// path. Fields left zero in the file keep their default. An empty path
// returns the defaults.
//
//	backends:
//	  community-discussion:
//	    reliability: 0.6
//	    max_attempts: 4
//	    timeout: 5s
func LoadBackendProfiles(path string) (map[string]BackendProfile, error) {
	profiles := DefaultBackendProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backends file: %w", err)
	}

	var file backendsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse backends file: %w", err)
	}

	names := make([]string, 0, len(file.Backends))
	for name := range file.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		override := file.Backends[name]
		if override.Reliability < 0 || override.Reliability > 1 {
			return nil, fmt.Errorf("backend %s: reliability %v outside [0,1]", name, override.Reliability)
		}
		p, ok := profiles[name]
		if !ok {
			p = DefaultBackendProfiles()["general-search"]
			p.Reliability = 0.5
		}
		profiles[name] = merge(p, override, presentKeys(data, name))
	}
	return profiles, nil
}

// merge applies o over p. Enabled and reliability are taken whenever the
// file names them, because false and 0 are meaningful values for both.
func merge(p, o BackendProfile, given map[string]bool) BackendProfile {
	if given["enabled"] {
		p.Enabled = o.Enabled
	}
	if given["reliability"] {
		p.Reliability = o.Reliability
	}
	if o.MaxAttempts > 0 {
		p.MaxAttempts = o.MaxAttempts
	}
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	if o.BackoffBase > 0 {
		p.BackoffBase = o.BackoffBase
	}
	if o.BackoffMax > 0 {
		p.BackoffMax = o.BackoffMax
	}
	if o.RatePerSecond > 0 {
		p.RatePerSecond = o.RatePerSecond
	}
	if o.Burst > 0 {
		p.Burst = o.Burst
	}
	return p
}

// presentKeys returns the keys the file spells out for one backend, so an
// omitted key is not mistaken for its zero value.
func presentKeys(data []byte, name string) map[string]bool {
	var raw struct {
		Backends map[string]map[string]any `yaml:"backends"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
	}
	keys := make(map[string]bool, len(raw.Backends[name]))
	for k := range raw.Backends[name] {
		keys[k] = true
	}
	return keys
}
