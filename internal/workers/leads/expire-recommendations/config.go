// internal/workers/leads/expire-recommendations/config.go
package expirerecommendations

import (
	"time"

	"rent360-leads/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// Retention applies when the job does not carry retentionDays.
	Retention time.Duration
}

func LoadConfig(wcfg config.WorkerConfig, rcfg config.RecommendationsConfig) *Config {
	timeout := time.Duration(wcfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Config{
		Timeout:   timeout,
		Retention: rcfg.Retention(),
	}
}
