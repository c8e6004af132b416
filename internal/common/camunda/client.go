// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rent360-leads/internal/common/config"
	"rent360-leads/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client used by the lead workers.
type Client struct {
	client         zbc.Client
	requestTimeout time.Duration
	retry          RetryConfig
}

// RetryConfig defines retry behavior for the initial topology probe.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// Dialer opens the underlying zbc client. Replaced in tests.
type Dialer func(cfg *zbc.ClientConfig) (zbc.Client, error)

// NewClient connects to the gateway and waits until it answers a topology
// request. Transient failures are retried with exponential backoff.
func NewClient(ctx context.Context, cfg config.CamundaConfig) (*Client, error) {
	return NewClientWithDialer(ctx, cfg, DefaultRetryConfig, zbc.NewClient)
}

func NewClientWithDialer(ctx context.Context, cfg config.CamundaConfig, retry RetryConfig, dial Dialer) (*Client, error) {
	zc, err := dial(&zbc.ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
	})
	if err != nil {
		return nil, errors.NewExternalServiceError("zeebe", fmt.Errorf("create client: %w", err))
	}

	c := &Client{
		client:         zc,
		requestTimeout: requestTimeout(cfg),
		retry:          retry,
	}

	if err := c.probe(ctx); err != nil {
		_ = zc.Close()
		return nil, err
	}
	return c, nil
}

func requestTimeout(cfg config.CamundaConfig) time.Duration {
	if cfg.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.RequestTimeout) * time.Millisecond
}

func (c *Client) probe(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		lastErr = c.HealthCheck(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryableZeebeError(lastErr) || attempt == c.retry.MaxRetries {
			break
		}

		delay := c.retry.BaseDelay * time.Duration(1<<attempt)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.NewExternalServiceError("zeebe", ctx.Err())
		}
	}
	return lastErr
}

// GetClient returns the raw Zeebe client for opening job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck sends a topology request. Registered as a readiness check.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return errors.NewExternalServiceError("zeebe", err)
	}
	return nil
}

// isRetryableZeebeError checks if the error is transient.
func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
