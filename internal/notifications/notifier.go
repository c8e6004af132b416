// Package notifications tells brokers about freshly generated leads over
// email (SES) and SMS (SNS).
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rent360-leads/internal/common/config"
	apperrors "rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/metrics"
	"rent360-leads/internal/models"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type EmailSender interface {
	SendText(ctx context.Context, to, subject, body string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

// BrokerNotifier sends the post-generation summary. Each channel sits
// behind its own circuit breaker so a failing provider stops being called
// until the open timeout elapses.
type BrokerNotifier struct {
	cfg    config.NotificationConfig
	email  EmailSender
	sms    SMSSender
	logger logger.Logger

	emailBreaker *gobreaker.CircuitBreaker[string]
	smsBreaker   *gobreaker.CircuitBreaker[string]
}

func NewBrokerNotifier(cfg config.NotificationConfig, email EmailSender, sms SMSSender, log logger.Logger) *BrokerNotifier {
	n := &BrokerNotifier{
		cfg:    cfg,
		email:  email,
		sms:    sms,
		logger: log.WithFields(map[string]interface{}{"component": "notifications"}),
	}
	n.emailBreaker = n.newBreaker(ChannelEmail)
	n.smsBreaker = n.newBreaker(ChannelSMS)
	return n
}

func (n *BrokerNotifier) newBreaker(channel string) *gobreaker.CircuitBreaker[string] {
	maxFailures := uint32(n.cfg.Breaker.MaxFailures)
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := time.Duration(n.cfg.Breaker.OpenTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Minute
	}

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "notify-" + channel,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.logger.Warn("notification breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
}

// Subject and Body render the summary sent for a generation result.
func Subject(res models.GenerationResult) string {
	return fmt.Sprintf("Rent360: %d nuevas recomendaciones de leads", res.Generated)
}

func Body(b models.Broker, res models.GenerationResult) string {
	name := b.Name
	if name == "" {
		name = "corredor"
	}
	return fmt.Sprintf(
		"Hola %s, se generaron %d nuevas recomendaciones (%d propietarios, %d inquilinos). Revísalas en tu panel de descubrimiento.",
		name, res.Generated, res.Owners, res.Tenants,
	)
}

// NotifyGenerated sends the summary on every enabled channel the broker can
// be reached on. Channel failures are joined into one NOTIFICATION_SEND_FAILED.
func (n *BrokerNotifier) NotifyGenerated(ctx context.Context, b models.Broker, res models.GenerationResult) error {
	if res.Generated == 0 {
		return nil
	}

	var errs []error

	if n.cfg.Email.Enabled && n.email != nil && b.Email != "" {
		if err := n.send(ctx, ChannelEmail, n.emailBreaker, func() (string, error) {
			return n.email.SendText(ctx, b.Email, Subject(res), Body(b, res))
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if n.cfg.SMS.Enabled && n.sms != nil && b.Phone != "" {
		if err := n.send(ctx, ChannelSMS, n.smsBreaker, func() (string, error) {
			return n.sms.SendSMS(ctx, b.Phone, Body(b, res))
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return apperrors.NewNotificationSendFailedError("broker summary", errors.Join(errs...))
	}
	return nil
}

func (n *BrokerNotifier) send(ctx context.Context, channel string, cb *gobreaker.CircuitBreaker[string], fn func() (string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messageID, err := cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.NotificationsSent.WithLabelValues(channel, "skipped").Inc()
		return fmt.Errorf("%s: %w", channel, err)
	case err != nil:
		metrics.NotificationsSent.WithLabelValues(channel, "failed").Inc()
		n.logger.Error("notification send failed", map[string]interface{}{
			"channel": channel,
			"error":   err,
		})
		return fmt.Errorf("%s: %w", channel, err)
	}

	metrics.NotificationsSent.WithLabelValues(channel, "sent").Inc()
	n.logger.Debug("notification sent", map[string]interface{}{
		"channel":   channel,
		"messageId": messageID,
	})
	return nil
}
