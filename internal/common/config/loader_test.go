package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: rent360
    user: rent360
  redis:
    address: localhost:6379
auth:
  mode: jwt
  jwt:
    secret: test-secret
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)

	r := cfg.Recommendations
	assert.Equal(t, 60, r.Threshold)
	assert.Equal(t, 50, r.BaseScore)
	assert.Equal(t, 100, r.MaxScore)
	assert.Equal(t, 50, r.CandidateLimit)
	assert.Equal(t, 30, r.ActivityWindowDays)
	assert.Equal(t, 30, r.ExpiryDays)
	assert.Equal(t, 10, r.DefaultListLimit)
	assert.Equal(t, 100, r.MaxListLimit)
	assert.Equal(t, 90, r.RetentionDays)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestLoad_MergesEnvironmentOverlay(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "staging")
	dir := writeConfigDir(t, map[string]string{
		"config.yaml":         minimalConfig,
		"config.staging.yaml": "server:\n  addr: \":9090\"\n",
	})

	cfg, err := loadFromDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
}

func TestLoad_MissingOverlayIsOptional(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "staging")
	dir := writeConfigDir(t, map[string]string{"config.yaml": minimalConfig})

	cfg, err := loadFromDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_MalformedOverlayFails(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "staging")
	dir := writeConfigDir(t, map[string]string{
		"config.yaml":         minimalConfig,
		"config.staging.yaml": "server: [unterminated\n",
	})

	_, err := loadFromDirs(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.staging")
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("LEADS_TEST_DB_HOST", "db.internal")

	body := `
database:
  postgres:
    host: ${LEADS_TEST_DB_HOST}
    database: rent360
    user: rent360
  redis:
    address: localhost:6379
auth:
  jwt:
    secret: s
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	body := minimalConfig + `
workers:
  generate-broker-recommendations:
    enabled: true
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)

	w := GetWorkerConfig(cfg, "generate-broker-recommendations")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)

	assert.True(t, IsWorkerEnabled(cfg, "unknown-task"))
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.Postgres.Host = "localhost"
		cfg.Database.Postgres.Database = "rent360"
		cfg.Database.Postgres.User = "rent360"
		cfg.Database.Redis.Address = "localhost:6379"
		cfg.Auth.JWT.Secret = "secret"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host",
		},
		{
			name:    "missing redis",
			mutate:  func(c *Config) { c.Database.Redis.Address = "" },
			wantErr: "database.redis.address",
		},
		{
			name:    "jwt without secret",
			mutate:  func(c *Config) { c.Auth.JWT.Secret = "" },
			wantErr: "auth.jwt.secret",
		},
		{
			name:    "keycloak without realm",
			mutate:  func(c *Config) { c.Auth.Mode = "keycloak"; c.Auth.Keycloak.URL = "http://kc" },
			wantErr: "auth.keycloak",
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Auth.Mode = "basic" },
			wantErr: "auth.mode",
		},
		{
			name:    "camunda enabled without broker",
			mutate:  func(c *Config) { c.Camunda.Enabled = true },
			wantErr: "camunda.broker_address",
		},
		{
			name:    "threshold above max",
			mutate:  func(c *Config) { c.Recommendations.Threshold = 120 },
			wantErr: "max_score",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRecommendationDurations(t *testing.T) {
	r := DefaultRecommendations()
	assert.Equal(t, 30*24*60*60.0, r.Expiry().Seconds())
	assert.Equal(t, r.ActivityWindow(), r.Expiry())
	assert.Equal(t, 90*24*60*60.0, r.Retention().Seconds())
}
