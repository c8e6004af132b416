// internal/workers/leads/expire-recommendations/handler_test.go
package expirerecommendations

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rent360-leads/internal/common/camunda/camundatest"
	"rent360-leads/internal/common/config"
	"rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/models"
	"rent360-leads/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	result    models.SweepResult
	err       error
	retention time.Duration
	block     bool
}

func (f *fakeSweeper) ExpireStale(ctx context.Context, retention time.Duration) (models.SweepResult, error) {
	f.retention = retention
	if f.block {
		<-ctx.Done()
		return models.SweepResult{}, errors.NewDatabaseQueryFailedError("mark expired", ctx.Err())
	}
	return f.result, f.err
}

func newJob(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       99,
		Type:      TaskType,
		Retries:   3,
		Variables: variables,
	}}
}

const testRegistry = `{
  "activities": [{
    "id": "leads.recommendations.expire",
    "taskType": "expire-broker-recommendations",
    "inputSchema": {
      "type": "object",
      "properties": {"retentionDays": {"type": "integer", "minimum": 1, "maximum": 3650}}
    }
  }]
}`

func newTestHandler(t *testing.T, s Sweeper) *Handler {
	reg, err := registry.Parse([]byte(testRegistry))
	require.NoError(t, err)
	cfg := &Config{Timeout: time.Minute, Retention: 90 * 24 * time.Hour}
	return NewHandler(cfg, s, reg, logger.NewTestLogger(t))
}

func TestExecute_DefaultRetention(t *testing.T) {
	sw := &fakeSweeper{result: models.SweepResult{Expired: 4, Purged: 2}}
	h := newTestHandler(t, sw)

	out, err := h.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, &Output{Expired: 4, Purged: 2}, out)
	assert.Equal(t, 90*24*time.Hour, sw.retention)
}

func TestExecute_JobRetentionOverridesDefault(t *testing.T) {
	sw := &fakeSweeper{}
	h := newTestHandler(t, sw)

	_, err := h.Execute(context.Background(), &Input{RetentionDays: 7})

	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, sw.retention)
}

func TestExecute_StoreFailure(t *testing.T) {
	h := newTestHandler(t, &fakeSweeper{err: errors.NewDatabaseQueryFailedError("mark expired", assert.AnError)})

	out, err := h.Execute(context.Background(), &Input{})

	assert.Nil(t, out)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabaseQueryFailed))
}

func TestDecodeInput(t *testing.T) {
	h := newTestHandler(t, &fakeSweeper{})

	in, err := h.DecodeInput(`{"retentionDays":30}`)
	require.NoError(t, err)
	assert.Equal(t, 30, in.RetentionDays)

	in, err = h.DecodeInput(`{}`)
	require.NoError(t, err)
	assert.Zero(t, in.RetentionDays)

	in, err = h.DecodeInput("")
	require.NoError(t, err)
	assert.Zero(t, in.RetentionDays)

	for _, vars := range []string{`{"retentionDays":0}`, `{"retentionDays":"30"}`, `{"retentionDays":200000}`, `[`} {
		t.Run(vars, func(t *testing.T) {
			_, err := h.DecodeInput(vars)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest), "got %v", err)
		})
	}
}

func TestDecodeInput_CapsRetentionWithoutRegistry(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Minute}, &fakeSweeper{}, nil, logger.NewTestLogger(t))

	_, err := h.DecodeInput(`{"retentionDays":200000}`)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest), "got %v", err)

	in, err := h.DecodeInput(`{"retentionDays":3650}`)
	require.NoError(t, err)
	assert.Equal(t, MaxRetentionDays, in.RetentionDays)
}

func TestHandle_CompletesJob(t *testing.T) {
	sw := &fakeSweeper{result: models.SweepResult{Expired: 5, Purged: 2}}
	client := camundatest.NewJobClient()

	newTestHandler(t, sw).Handle(client, newJob(`{"retentionDays":7}`))

	completed := client.Completed()
	require.Len(t, completed, 1)
	var vars Output
	require.NoError(t, json.Unmarshal([]byte(completed[0].Variables), &vars))
	assert.Equal(t, Output{Expired: 5, Purged: 2}, vars)
	assert.Equal(t, 7*24*time.Hour, sw.retention)
}

func TestHandle_StoreFailureFailsWithRetries(t *testing.T) {
	client := camundatest.NewJobClient()

	newTestHandler(t, &fakeSweeper{err: errors.NewDatabaseQueryFailedError("purge", assert.AnError)}).
		Handle(client, newJob(""))

	failed := client.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(99), failed[0].JobKey)
	assert.Equal(t, int32(2), failed[0].Retries)
	assert.Empty(t, client.Completed())
}

func TestHandle_TimedOutSweepStillFailsJob(t *testing.T) {
	cfg := &Config{Timeout: 50 * time.Millisecond, Retention: 90 * 24 * time.Hour}
	h := NewHandler(cfg, &fakeSweeper{block: true}, nil, logger.NewTestLogger(t))
	client := camundatest.NewJobClient()

	h.Handle(client, newJob(""))

	assert.Empty(t, client.Rejected())
	require.Len(t, client.Failed(), 1)
}

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(config.WorkerConfig{}, config.RecommendationsConfig{RetentionDays: 90})

	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention)
}
