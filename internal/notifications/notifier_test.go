package notifications

import (
	"context"
	"errors"
	"testing"

	awsclient "rent360-leads/internal/common/aws"
	"rent360-leads/internal/common/config"
	apperrors "rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	calls         []*ses.SendEmailInput
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls = append(m.calls, params)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type MockSNSService struct {
	calls       []*sns.PublishInput
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = true
	cfg.Email.FromEmail = "no-reply@rent360.cl"
	cfg.SMS.Enabled = true
	cfg.SMS.SenderID = "Rent360"
	cfg.Breaker.MaxFailures = 2
	cfg.Breaker.OpenTimeout = 60000
	return cfg
}

func testBroker() models.Broker {
	return models.Broker{ID: "broker-1", Name: "Ana", Email: "ana@example.com", Phone: "+56911111111"}
}

func newTestNotifier(t *testing.T, cfg config.NotificationConfig) (*BrokerNotifier, *MockSESService, *MockSNSService) {
	sesMock := &MockSESService{}
	snsMock := &MockSNSService{}
	n := NewBrokerNotifier(cfg,
		awsclient.NewSESClientWithAPI(sesMock, cfg.Email.FromEmail),
		awsclient.NewSNSClientWithAPI(snsMock, cfg.SMS.SenderID),
		logger.NewTestLogger(t),
	)
	return n, sesMock, snsMock
}

var result = models.GenerationResult{Generated: 3, Owners: 2, Tenants: 1}

// ==========================
// Core Functionality Tests
// ==========================

func TestNotifyGenerated_SendsEmailAndSMS(t *testing.T) {
	n, sesMock, snsMock := newTestNotifier(t, createTestConfig())

	err := n.NotifyGenerated(context.Background(), testBroker(), result)
	require.NoError(t, err)

	require.Len(t, sesMock.calls, 1)
	in := sesMock.calls[0]
	assert.Equal(t, []string{"ana@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "no-reply@rent360.cl", aws.ToString(in.Source))
	assert.Equal(t, "Rent360: 3 nuevas recomendaciones de leads", aws.ToString(in.Message.Subject.Data))
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "2 propietarios, 1 inquilinos")

	require.Len(t, snsMock.calls, 1)
	pub := snsMock.calls[0]
	assert.Equal(t, "+56911111111", aws.ToString(pub.PhoneNumber))
	assert.Equal(t, "Rent360", aws.ToString(pub.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestNotifyGenerated_NothingGenerated(t *testing.T) {
	n, sesMock, snsMock := newTestNotifier(t, createTestConfig())

	err := n.NotifyGenerated(context.Background(), testBroker(), models.GenerationResult{})
	require.NoError(t, err)
	assert.Empty(t, sesMock.calls)
	assert.Empty(t, snsMock.calls)
}

func TestNotifyGenerated_ChannelSelection(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(*config.NotificationConfig)
		broker    func(*models.Broker)
		wantEmail int
		wantSMS   int
	}{
		{
			name:      "email disabled",
			mutateCfg: func(c *config.NotificationConfig) { c.Email.Enabled = false },
			wantEmail: 0,
			wantSMS:   1,
		},
		{
			name:      "sms disabled",
			mutateCfg: func(c *config.NotificationConfig) { c.SMS.Enabled = false },
			wantEmail: 1,
			wantSMS:   0,
		},
		{
			name:      "broker without phone",
			broker:    func(b *models.Broker) { b.Phone = "" },
			wantEmail: 1,
			wantSMS:   0,
		},
		{
			name:      "broker without contact data",
			broker:    func(b *models.Broker) { b.Phone = ""; b.Email = "" },
			wantEmail: 0,
			wantSMS:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			if tt.mutateCfg != nil {
				tt.mutateCfg(&cfg)
			}
			b := testBroker()
			if tt.broker != nil {
				tt.broker(&b)
			}

			n, sesMock, snsMock := newTestNotifier(t, cfg)
			require.NoError(t, n.NotifyGenerated(context.Background(), b, result))
			assert.Len(t, sesMock.calls, tt.wantEmail)
			assert.Len(t, snsMock.calls, tt.wantSMS)
		})
	}
}

// ==========================
// Failure Handling Tests
// ==========================

func TestNotifyGenerated_EmailFailureStillSendsSMS(t *testing.T) {
	n, sesMock, snsMock := newTestNotifier(t, createTestConfig())
	sesMock.SendEmailFunc = func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return nil, errors.New("MessageRejected: Email address is not verified")
	}

	err := n.NotifyGenerated(context.Background(), testBroker(), result)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotificationSendFailed))
	assert.Len(t, snsMock.calls, 1)
}

func TestNotifyGenerated_BreakerOpens(t *testing.T) {
	cfg := createTestConfig()
	cfg.SMS.Enabled = false
	n, sesMock, _ := newTestNotifier(t, cfg)
	sesMock.SendEmailFunc = func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return nil, errors.New("Throttling")
	}

	for i := 0; i < 2; i++ {
		require.Error(t, n.NotifyGenerated(context.Background(), testBroker(), result))
	}
	require.Len(t, sesMock.calls, 2)

	err := n.NotifyGenerated(context.Background(), testBroker(), result)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, sesMock.calls, 2, "open breaker must not reach SES")
}

func TestBody_DefaultsName(t *testing.T) {
	body := Body(models.Broker{}, models.GenerationResult{Generated: 1, Owners: 1})
	assert.Contains(t, body, "Hola corredor")
	assert.Contains(t, body, "se generaron 1 nuevas recomendaciones")
}
