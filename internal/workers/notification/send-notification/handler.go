package sendnotification

import (
	"context"
	"encoding/json"
	stderrors "errors"
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

const TaskType = "send-notification"

type Handler struct {
	config       *Config
	sender       Sender
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Sender       Sender
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

// Execute sends one notification. Suppressed and duplicate sends complete
// normally so a retried job never delivers twice. A failed delivery also
// completes: the record is retried by the sweep, not by the workflow.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req := dispatch.Request{
		Type:         notification.Type(input.Type),
		Recipient:    input.Recipient,
		Channel:      notification.Channel(input.Channel),
		Payload:      template.Variables(input.Data),
		Metadata:     input.Metadata,
		DedupKey:     input.DedupKey,
		ScheduledFor: input.ScheduledFor,
	}

	n, err := h.sender.Send(ctx, req)
	switch {
	case stderrors.Is(err, dispatch.ErrDuplicate):
		h.logger.Info("notification already sent", map[string]interface{}{"dedupKey": input.DedupKey})
		return &Output{NotificationStatus: "duplicate", Duplicate: true}, nil
	case err != nil:
		return nil, dispatch.Classify(req.Type, input.Recipient.Language, err)
	case n == nil:
		return &Output{NotificationStatus: "suppressed", Suppressed: true}, nil
	}

	return &Output{
		NotificationID:     n.ID,
		NotificationStatus: string(n.Status),
		Channel:            string(n.Channel),
		FailureReason:      n.FailureReason,
	}, nil
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
