// cmd/tools/leadctl/main_test.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"rent360-leads/internal/common/errors"
	"rent360-leads/internal/models"
	"rent360-leads/internal/recommendations"
	"rent360-leads/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	generated  []string
	listed     []recommendations.ListQuery
	retentions []time.Duration
	err        error
}

func (f *fakeService) Generate(_ context.Context, brokerID string) (models.GenerationResult, error) {
	f.generated = append(f.generated, brokerID)
	return models.GenerationResult{Generated: 2, Owners: 1, Tenants: 1}, f.err
}

func (f *fakeService) List(_ context.Context, q recommendations.ListQuery) ([]models.LeadRecommendation, models.ListMeta, error) {
	f.listed = append(f.listed, q)
	return []models.LeadRecommendation{}, models.ListMeta{}, f.err
}

func (f *fakeService) ExpireStale(_ context.Context, retention time.Duration) (models.SweepResult, error) {
	f.retentions = append(f.retentions, retention)
	return models.SweepResult{Expired: 3, Purged: 1}, f.err
}

func run(t *testing.T, svc *fakeService, args ...string) (string, error) {
	t.Helper()
	closed := false
	open := func(context.Context) (leadService, func(), error) {
		return svc, func() { closed = true }, nil
	}
	var out bytes.Buffer
	cmd := newRootCmd(open, &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.True(t, closed, "backend was not closed")
	}
	return out.String(), err
}

func TestGenerate(t *testing.T) {
	svc := &fakeService{}

	out, err := run(t, svc, "generate", "--broker", "broker-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1"}, svc.generated)
	var res models.GenerationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Generated)
}

func TestGenerate_RequiresBroker(t *testing.T) {
	svc := &fakeService{}

	_, err := run(t, svc, "generate")

	require.Error(t, err)
	assert.Empty(t, svc.generated)
}

func TestGenerate_ServiceError(t *testing.T) {
	svc := &fakeService{err: errors.NewBrokerNotFoundError("ghost")}

	_, err := run(t, svc, "generate", "--broker", "ghost")

	assert.True(t, errors.HasCode(err, errors.ErrCodeBrokerNotFound))
}

func TestList_UppercasesStatus(t *testing.T) {
	svc := &fakeService{}

	_, err := run(t, svc, "list", "--broker", "broker-1", "--status", "new", "--limit", "5")

	require.NoError(t, err)
	require.Len(t, svc.listed, 1)
	assert.Equal(t, recommendations.ListQuery{BrokerID: "broker-1", Status: "NEW", Limit: 5}, svc.listed[0])
}

func TestExpire(t *testing.T) {
	svc := &fakeService{}

	out, err := run(t, svc, "expire", "--retention-days", "30")

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * 24 * time.Hour}, svc.retentions)
	assert.Contains(t, out, `"expired": 3`)

	_, err = run(t, svc, "expire", "--retention-days", "-1")
	assert.Error(t, err)
}

func TestCheckRegistry(t *testing.T) {
	reg, err := registry.Parse([]byte(`{"activities":[
		{"id":"a","taskType":"generate-broker-recommendations","inputSchema":{"type":"object"},"outputSchema":{"type":"object"}},
		{"id":"b","taskType":"expire-broker-recommendations","inputSchema":{"type":"object"}}
	]}`))
	require.NoError(t, err)

	problems := checkRegistry(reg, []string{"generate-broker-recommendations", "expire-broker-recommendations", "score-leads"})

	assert.Equal(t, []string{
		"expire-broker-recommendations: missing outputSchema",
		"score-leads: not registered",
	}, problems)
}

func TestRegistryValidate_ShippedFile(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(nil, &out)
	cmd.SetArgs([]string{"registry", "validate", "--path", "../../../configs/activity-registry.json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "all 2 workers registered")
}
