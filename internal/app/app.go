// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rent360-leads/internal/api"
	"rent360-leads/internal/common/auth"
	awsclient "rent360-leads/internal/common/aws"
	"rent360-leads/internal/common/config"
	"rent360-leads/internal/common/database"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/observability"
	"rent360-leads/internal/common/zoho"
	"rent360-leads/internal/notifications"
	"rent360-leads/internal/recommendations"
)

// App holds the connections and the recommendation service shared by the
// HTTP server, the workflow workers and the CLI.
type App struct {
	Config   *config.Config
	Postgres *database.PostgresClient
	Redis    *database.RedisClient
	Service  *recommendations.Service
	Logger   logger.Logger
}

// Options tunes how hard New tries to reach its dependencies.
type Options struct {
	PostgresRetries int
	RedisRetries    int
	RetryDelay      time.Duration
	// MaxRetryDelay caps the doubling delay between attempts.
	MaxRetryDelay time.Duration
	// SkipMigrations overrides database.postgres.auto_migrate.
	SkipMigrations bool
}

// Redis gets about 6s before the service starts without the lock and cache.
var DefaultOptions = Options{
	PostgresRetries: 15,
	RedisRetries:    3,
	RetryDelay:      2 * time.Second,
	MaxRetryDelay:   30 * time.Second,
}

// RetryWithBackoff attempts to execute a function with exponential backoff,
// giving up early when ctx is done.
func RetryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay, maxDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	if maxRetries < 1 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s aborted after %d attempts: %w", operationName, i+1, ctx.Err())
			case <-timer.C:
			}

			delay *= 2
			if maxDelay > 0 && delay > maxDelay {
				delay = maxDelay
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// New connects to Postgres and Redis, applies pending migrations and builds
// the recommendation service with every optional collaborator the config
// enables. Redis is best effort: when it cannot be reached the service runs
// without the generation lock and the broker cache.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, obs *observability.Observability, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	err := RetryWithBackoff(ctx, func() error {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		a.Postgres = pg
		return nil
	}, opts.PostgresRetries, opts.RetryDelay, opts.MaxRetryDelay, log, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected successfully", nil)

	if cfg.Database.Postgres.AutoMigrate && !opts.SkipMigrations {
		applied, err := database.Migrate(ctx, a.Postgres.GetDB())
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info("migrations applied", map[string]interface{}{"versions": applied})
	}

	err = RetryWithBackoff(ctx, func() error {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return err
		}
		a.Redis = rc
		return nil
	}, opts.RedisRetries, opts.RetryDelay, opts.MaxRetryDelay, log, "Redis connection")
	if err != nil {
		log.Warn("redis unavailable, generation lock and broker cache disabled", map[string]interface{}{"error": err})
	} else {
		log.Info("Redis connected successfully", nil)
	}

	serviceOpts := []recommendations.Option{recommendations.WithObservability(obs)}
	if a.Redis != nil {
		rcfg := cfg.Recommendations
		serviceOpts = append(serviceOpts,
			recommendations.WithLock(recommendations.NewGenerationLock(a.Redis.Client, time.Duration(rcfg.LockTTL)*time.Millisecond)),
			recommendations.WithBrokerCache(recommendations.NewBrokerCache(a.Redis.Client, time.Duration(rcfg.ProfileCacheTTL)*time.Millisecond)),
		)
	}

	notifier, err := NewNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		log.Warn("notifications disabled", map[string]interface{}{"error": err})
	} else if notifier != nil {
		serviceOpts = append(serviceOpts, recommendations.WithNotifier(notifier))
	}
	if exporter := NewExporter(cfg.Integrations); exporter != nil {
		serviceOpts = append(serviceOpts, recommendations.WithExporter(exporter))
	}

	store := recommendations.NewPostgresStore(a.Postgres.GetDB())
	a.Service = recommendations.NewService(cfg.Recommendations, store, log, serviceOpts...)
	return a, nil
}

// Checks returns the readiness probes of the connected dependencies.
func (a *App) Checks() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{
		"postgres": a.Postgres.Ping,
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Ping
	}
	return checks
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("error closing redis", map[string]interface{}{"error": err})
		}
	}
	if a.Postgres != nil {
		if err := a.Postgres.Close(); err != nil {
			a.Logger.Error("error closing postgres", map[string]interface{}{"error": err})
		}
	}
}

// NewNotifier returns nil when no channel is enabled.
func NewNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*notifications.BrokerNotifier, error) {
	if !cfg.Email.Enabled && !cfg.SMS.Enabled {
		return nil, nil
	}

	awsCfg, err := awsclient.LoadConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}

	var (
		email notifications.EmailSender
		sms   notifications.SMSSender
	)
	if cfg.Email.Enabled {
		email = awsclient.NewSESClient(awsCfg, cfg.Email.FromEmail)
	}
	if cfg.SMS.Enabled {
		sms = awsclient.NewSNSClient(awsCfg, cfg.SMS.SenderID)
	}
	return notifications.NewBrokerNotifier(cfg, email, sms, log), nil
}

// NewExporter returns nil unless the Zoho integration is enabled.
func NewExporter(cfg config.IntegrationConfig) *zoho.CRMClient {
	if !cfg.Zoho.Enabled {
		return nil
	}
	return zoho.NewCRMClient(cfg.Zoho.BaseURL, cfg.Zoho.AuthToken, time.Duration(cfg.Zoho.Timeout)*time.Millisecond)
}

// NewResolver picks the bearer token resolver for the configured auth mode.
func NewResolver(cfg config.AuthConfig) (auth.Resolver, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "jwt":
		if cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("auth.jwt.secret is required in jwt mode")
		}
		return auth.NewJWTResolver(cfg.JWT.Secret, cfg.JWT.Issuer), nil
	case "keycloak":
		kc := cfg.Keycloak
		if kc.URL == "" || kc.Realm == "" {
			return nil, fmt.Errorf("auth.keycloak.url and realm are required in keycloak mode")
		}
		return auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
