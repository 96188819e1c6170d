// Package config provides configuration management for the signalrules
// runner.
package config

import (
	"fmt"
	"time"
)

// RunnerConfig holds configuration for the notification runner.
type RunnerConfig struct {
	CatalogPath string
	RulesPath   string
	Identity    string
	Source      string
	DBURL       string // empty disables the journal
	Watch       bool
	RecentTTL   time.Duration // how long an event stays in the recent map
}

// DefaultRunnerConfig returns configuration with default values.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		Identity:  "local",
		Source:    "journal",
		RecentTTL: 5 * time.Minute,
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *RunnerConfig) Validate() error {
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog path is required")
	}
	if c.RulesPath == "" {
		return fmt.Errorf("rules path is required")
	}
	if c.Identity == "" {
		return fmt.Errorf("identity must be non-empty")
	}
	if c.RecentTTL <= 0 {
		return fmt.Errorf("recent_ttl must be positive, got %v", c.RecentTTL)
	}
	return nil
}
