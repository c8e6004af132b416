// internal/workers/leads/generate-recommendations/handler_test.go
package generaterecommendations

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

// ==========================
// Test Helper Functions
// ==========================

type fakeGenerator struct {
	result models.GenerationResult
	err    error
	calls  []string
	// block makes Generate run until the job deadline.
	block bool
}

func (f *fakeGenerator) Generate(ctx context.Context, brokerID string) (models.GenerationResult, error) {
	f.calls = append(f.calls, brokerID)
	if f.block {
		<-ctx.Done()
		return models.GenerationResult{}, errors.NewDatabaseQueryFailedError("load candidates", ctx.Err())
	}
	return f.result, f.err
}

func newJob(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                42,
		Type:               TaskType,
		ProcessInstanceKey: 7,
		Retries:            3,
		Variables:          variables,
	}}
}

const testRegistry = `{
  "version": "1.0.0",
  "activities": [{
    "id": "leads.recommendations.generate",
    "taskType": "generate-broker-recommendations",
    "inputSchema": {
      "type": "object",
      "required": ["brokerId"],
      "properties": {"brokerId": {"type": "string", "minLength": 1}}
    }
  }]
}`

func newTestHandler(t *testing.T, gen Generator) *Handler {
	reg, err := registry.Parse([]byte(testRegistry))
	require.NoError(t, err)
	return NewHandler(&Config{Timeout: 5 * time.Second}, gen, reg, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestExecute_ReturnsPassCounts(t *testing.T) {
	gen := &fakeGenerator{result: models.GenerationResult{Generated: 3, Owners: 2, Tenants: 1}}
	h := newTestHandler(t, gen)

	out, err := h.Execute(context.Background(), &Input{BrokerID: "broker-1"})

	require.NoError(t, err)
	assert.Equal(t, &Output{Generated: 3, Owners: 2, Tenants: 1}, out)
	assert.Equal(t, []string{"broker-1"}, gen.calls)
}

func TestExecute_PropagatesServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"unknown broker", errors.NewBrokerNotFoundError("broker-9"), errors.ErrCodeBrokerNotFound},
		{"pass in flight", errors.NewGenerationInProgressError("broker-9"), errors.ErrCodeGenerationInProgress},
		{"insert failure", errors.NewDatabaseInsertFailedError(assert.AnError), errors.ErrCodeDatabaseInsertFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &fakeGenerator{err: tt.err})

			out, err := h.Execute(context.Background(), &Input{BrokerID: "broker-9"})

			assert.Nil(t, out)
			assert.True(t, errors.HasCode(err, tt.code))
		})
	}
}

// ==========================
// Job lifecycle
// ==========================

func TestHandle_CompletesJob(t *testing.T) {
	gen := &fakeGenerator{result: models.GenerationResult{Generated: 3, Owners: 2, Tenants: 1}}
	client := camundatest.NewJobClient()

	newTestHandler(t, gen).Handle(client, newJob(`{"brokerId":"broker-1"}`))

	completed := client.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(42), completed[0].JobKey)
	var vars Output
	require.NoError(t, json.Unmarshal([]byte(completed[0].Variables), &vars))
	assert.Equal(t, Output{Generated: 3, Owners: 2, Tenants: 1}, vars)
	assert.Empty(t, client.Failed())
	assert.Empty(t, client.Thrown())
}

func TestHandle_UnknownBrokerThrowsBPMNError(t *testing.T) {
	client := camundatest.NewJobClient()

	newTestHandler(t, &fakeGenerator{err: errors.NewBrokerNotFoundError("ghost")}).
		Handle(client, newJob(`{"brokerId":"ghost"}`))

	thrown := client.Thrown()
	require.Len(t, thrown, 1)
	assert.Equal(t, string(errors.ErrCodeBrokerNotFound), thrown[0].ErrorCode)
	assert.Empty(t, client.Failed())
	assert.Empty(t, client.Completed())
}

func TestHandle_InvalidInputThrowsBPMNError(t *testing.T) {
	gen := &fakeGenerator{}
	client := camundatest.NewJobClient()

	newTestHandler(t, gen).Handle(client, newJob(`{}`))

	thrown := client.Thrown()
	require.Len(t, thrown, 1)
	assert.Equal(t, string(errors.ErrCodeInvalidRequest), thrown[0].ErrorCode)
	assert.Empty(t, gen.calls)
}

func TestHandle_DatabaseFailureFailsWithRetries(t *testing.T) {
	client := camundatest.NewJobClient()

	newTestHandler(t, &fakeGenerator{err: errors.NewDatabaseQueryFailedError("load broker", assert.AnError)}).
		Handle(client, newJob(`{"brokerId":"broker-1"}`))

	failed := client.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(42), failed[0].JobKey)
	assert.Equal(t, int32(2), failed[0].Retries)
	assert.Empty(t, client.Thrown())
}

func TestHandle_TimedOutPassStillFailsJob(t *testing.T) {
	reg, err := registry.Parse([]byte(testRegistry))
	require.NoError(t, err)
	h := NewHandler(&Config{Timeout: 50 * time.Millisecond}, &fakeGenerator{block: true}, reg, logger.NewTestLogger(t))
	client := camundatest.NewJobClient()

	h.Handle(client, newJob(`{"brokerId":"broker-1"}`))

	assert.Empty(t, client.Rejected(), "command sent on the expired job context")
	failed := client.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int32(2), failed[0].Retries)
}

// ==========================
// Input decoding
// ==========================

func TestDecodeInput(t *testing.T) {
	h := newTestHandler(t, &fakeGenerator{})

	in, err := h.DecodeInput(`{"brokerId":" broker-1 ","processStartedAt":"2025-03-01"}`)
	require.NoError(t, err)
	assert.Equal(t, "broker-1", in.BrokerID)

	invalid := []string{
		`not json`,
		`{}`,
		`{"brokerId":""}`,
		`{"brokerId":42}`,
		`{"brokerId":"   "}`,
	}
	for _, vars := range invalid {
		t.Run(vars, func(t *testing.T) {
			_, err := h.DecodeInput(vars)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest), "got %v", err)
		})
	}
}

func TestDecodeInput_WithoutRegistry(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Second}, &fakeGenerator{}, nil, logger.NewTestLogger(t))

	in, err := h.DecodeInput(`{"brokerId":"broker-2"}`)

	require.NoError(t, err)
	assert.Equal(t, "broker-2", in.BrokerID)
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 59*time.Second, LoadConfig(config.WorkerConfig{Timeout: 60000}).Timeout)
	assert.Equal(t, 1500*time.Millisecond, LoadConfig(config.WorkerConfig{Timeout: 1500}).Timeout)
}
