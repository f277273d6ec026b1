package sendbulknotifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"billing-workers/internal/common/config"
	"billing-workers/internal/common/errors"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/metrics"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/dispatch"
	"billing-workers/internal/notification/template"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "send-bulk-notifications"

type Handler struct {
	config       *Config
	sender       BulkSender
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Sender       BulkSender
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("%s: sender is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       workerConfig,
		sender:       opts.Sender,
		logger:       log,
		errorHandler: errors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.GetKey(),
		"workflowKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute fans the request out to every recipient. Per-recipient failures
// are reported in the results and never fail the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Recipients) == 0 {
		return nil, errors.NewInvalidInputError("recipients must not be empty")
	}
	if len(input.Recipients) > maxRecipients {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("at most %d recipients per job, got %d", maxRecipients, len(input.Recipients)))
	}

	results := h.sender.SendBulk(ctx, dispatch.BulkRequest{
		Type:       notification.Type(input.Type),
		Recipients: input.Recipients,
		Channel:    notification.Channel(input.Channel),
		Payload:    template.Variables(input.Data),
		Metadata:   input.Metadata,
	})

	out := &Output{Total: len(results), Results: results}
	for _, r := range results {
		switch {
		case r.Suppressed:
			out.Suppressed++
		case r.Success:
			out.Succeeded++
		}
	}
	out.Failed = dispatch.Failures(results)

	h.logger.Info("bulk notification finished", map[string]interface{}{
		"type":       input.Type,
		"total":      out.Total,
		"succeeded":  out.Succeeded,
		"failed":     out.Failed,
		"suppressed": out.Suppressed,
	})
	return out, nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}

	result := inputSchema.ValidateInput(variables)
	if !result.Valid {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("decode input: %v", err))
	}
	return &input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}
