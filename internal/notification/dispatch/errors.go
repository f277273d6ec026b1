package dispatch

import (
	"errors"

	apperrors "billing-workers/internal/common/errors"
	"billing-workers/internal/notification"
	"billing-workers/internal/notification/template"
)

// Classify maps an error returned by Send into the shared error taxonomy.
// Configuration and input errors are never retryable; anything else is
// treated as a transient send failure.
func Classify(t notification.Type, language string, err error) *apperrors.StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		return stdErr
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, ErrChannelNotConfigured):
		return apperrors.NewChannelNotConfiguredError(err.Error())
	case errors.Is(err, template.ErrTemplateNotFound):
		return apperrors.NewTemplateNotFoundError(string(t), language)
	case errors.Is(err, ErrDuplicate):
		return apperrors.NewDuplicateNotificationError(err.Error())
	case errors.Is(err, ErrNotFound):
		return apperrors.NewNotificationNotFoundError(err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return apperrors.NewInvalidStatusTransitionError("", err.Error())
	default:
		return apperrors.NewNotificationSendFailedError(string(t), err)
	}
}
