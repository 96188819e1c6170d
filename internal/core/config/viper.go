package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*RunnerConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultRunnerConfig
	v.SetDefault("runner.catalog", "")
	v.SetDefault("runner.rules", "")
	v.SetDefault("runner.identity", "local")
	v.SetDefault("runner.source", "journal")
	v.SetDefault("runner.db_url", "")
	v.SetDefault("runner.watch", false)
	v.SetDefault("runner.recent_ttl", "5m")

	// Bind environment variables with SR_ prefix
	v.SetEnvPrefix("SR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &RunnerConfig{
		CatalogPath: v.GetString("runner.catalog"),
		RulesPath:   v.GetString("runner.rules"),
		Identity:    v.GetString("runner.identity"),
		Source:      v.GetString("runner.source"),
		DBURL:       v.GetString("runner.db_url"),
		Watch:       v.GetBool("runner.watch"),
		RecentTTL:   v.GetDuration("runner.recent_ttl"),
	}

	return cfg, nil
}
