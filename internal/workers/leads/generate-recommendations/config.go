// internal/workers/leads/generate-recommendations/config.go
package generaterecommendations

import (
	"time"

	"rent360-leads/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig derives the per-job deadline from the worker's activation
// timeout, leaving a small margin so the job is completed before Zeebe
// hands it to another worker.
func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := time.Duration(wcfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		return &Config{Timeout: 30 * time.Second}
	}
	if timeout > 2*time.Second {
		timeout -= time.Second
	}
	return &Config{Timeout: timeout}
}
