// internal/workers/leads/expire-recommendations/handler.go
package expirerecommendations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/metrics"
	"rent360-leads/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "expire-broker-recommendations"

	// MaxRetentionDays keeps the retention window well inside time.Duration.
	MaxRetentionDays = 3650
)

// Sweeper expires lapsed recommendations and purges old terminal rows.
type Sweeper interface {
	ExpireStale(ctx context.Context, retention time.Duration) (models.SweepResult, error)
}

type InputValidator interface {
	ValidateInput(taskType string, input map[string]interface{}) error
}

type Handler struct {
	config     *Config
	sweeper    Sweeper
	validator  InputValidator
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, sweeper Sweeper, validator InputValidator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		sweeper:    sweeper,
		validator:  validator,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.decodeInput(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) decodeInput(variables string) (*Input, error) {
	if variables == "" {
		return &Input{}, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
	}
	if h.validator != nil {
		if err := h.validator.ValidateInput(TaskType, raw); err != nil {
			return nil, errors.NewInvalidRequestError(err.Error())
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
	}
	if input.RetentionDays < 0 {
		return nil, errors.NewInvalidRequestError("retentionDays must be positive")
	}
	if input.RetentionDays > MaxRetentionDays {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("retentionDays must not exceed %d", MaxRetentionDays))
	}
	return &input, nil
}

func (h *Handler) retention(input *Input) time.Duration {
	if input.RetentionDays > 0 {
		return time.Duration(input.RetentionDays) * 24 * time.Hour
	}
	return h.config.Retention
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.sweeper.ExpireStale(ctx, h.retention(input))
	if err != nil {
		return nil, err
	}
	return &Output{Expired: res.Expired, Purged: res.Purged}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) DecodeInput(variables string) (*Input, error) {
	return h.decodeInput(variables)
}
