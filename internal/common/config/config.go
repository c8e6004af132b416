// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App             AppConfig               `mapstructure:"app"`
	Server          ServerConfig            `mapstructure:"server"`
	Database        DatabaseConfig          `mapstructure:"database"`
	Auth            AuthConfig              `mapstructure:"auth"`
	Recommendations RecommendationsConfig   `mapstructure:"recommendations"`
	Camunda         CamundaConfig           `mapstructure:"camunda"`
	Workers         map[string]WorkerConfig `mapstructure:"workers"`
	Notifications   NotificationConfig      `mapstructure:"notifications"`
	Integrations    IntegrationConfig       `mapstructure:"integrations"`
	Logging         LoggingConfig           `mapstructure:"logging"`
	RegistryPath    string                  `mapstructure:"registry_path"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Addr            string   `mapstructure:"addr"`
	MetricsAddr     string   `mapstructure:"metrics_addr"`
	ReadTimeout     int      `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int      `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	// GenerateRateLimit caps POST requests per broker per minute.
	GenerateRateLimit int `mapstructure:"generate_rate_limit"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig selects how bearer tokens are resolved into a session.
type AuthConfig struct {
	// Mode is "jwt" (local HS256 verification) or "keycloak" (introspection).
	Mode string `mapstructure:"mode"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`
}

// RecommendationsConfig holds the scoring and retention knobs of the engine.
type RecommendationsConfig struct {
	Threshold          int `mapstructure:"threshold"`
	BaseScore          int `mapstructure:"base_score"`
	MaxScore           int `mapstructure:"max_score"`
	CandidateLimit     int `mapstructure:"candidate_limit"`
	ActivityWindowDays int `mapstructure:"activity_window_days"`
	ExpiryDays         int `mapstructure:"expiry_days"`
	DefaultListLimit   int `mapstructure:"default_list_limit"`
	MaxListLimit       int `mapstructure:"max_list_limit"`
	LockTTL            int `mapstructure:"lock_ttl"` // milliseconds
	RetentionDays      int `mapstructure:"retention_days"`
	ProfileCacheTTL    int `mapstructure:"profile_cache_ttl"` // milliseconds
}

func (r RecommendationsConfig) ActivityWindow() time.Duration {
	return time.Duration(r.ActivityWindowDays) * 24 * time.Hour
}

func (r RecommendationsConfig) Expiry() time.Duration {
	return time.Duration(r.ExpiryDays) * 24 * time.Hour
}

func (r RecommendationsConfig) Retention() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// NotificationConfig holds settings for the broker summary notifications.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	Breaker struct {
		MaxFailures int `mapstructure:"max_failures"`
		OpenTimeout int `mapstructure:"open_timeout"` // milliseconds
	} `mapstructure:"breaker"`
}

// IntegrationConfig holds settings for CRM and other external services.
type IntegrationConfig struct {
	Zoho struct {
		Enabled   bool   `mapstructure:"enabled"`
		BaseURL   string `mapstructure:"base_url"`
		AuthToken string `mapstructure:"oauth_token"`
		Timeout   int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"zoho"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
