// Package errors provides standardized error handling for the billing and
// notification workers and their BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Data errors: a malformed contract must abort contract creation.
	ErrCodeInvalidContract  ErrorCode = "INVALID_CONTRACT"
	ErrCodeScheduleOverflow ErrorCode = "SCHEDULE_OVERFLOW"

	// Configuration errors: surfaced to the caller, never retried.
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeChannelNotConfigured ErrorCode = "CHANNEL_NOT_CONFIGURED"

	// Transient delivery errors.
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	// Suppressed / idempotent outcomes.
	ErrCodeNotificationSuppressed ErrorCode = "NOTIFICATION_SUPPRESSED"
	ErrCodeDuplicateNotification  ErrorCode = "DUPLICATE_NOTIFICATION"

	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeNotificationNotFound    ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidInput            ErrorCode = "INVALID_INPUT"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
)

// Error categories follow the billing error taxonomy.
const (
	CategoryConfiguration = "CONFIGURATION"
	CategoryTransient     = "TRANSIENT"
	CategoryData          = "DATA"
	CategorySuppressed    = "SUPPRESSED"
	CategoryValidation    = "VALIDATION"
	CategoryDatabase      = "DATABASE"
	CategoryOther         = "OTHER"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInvalidContractError creates a non-retryable contract data error.
func NewInvalidContractError(details string) *StandardError {
	return newError(ErrCodeInvalidContract, "Contract is malformed", details, false, nil)
}

// NewScheduleOverflowError reports a schedule that exceeded the iteration cap.
func NewScheduleOverflowError(contractID string, limit int, cause error) *StandardError {
	return newError(ErrCodeScheduleOverflow, "Payment schedule exceeded iteration cap",
		fmt.Sprintf("contractId: %s, limit: %d", contractID, limit), false, cause)
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(notificationType, language string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found in registry",
		fmt.Sprintf("type: %s, language: %s", notificationType, language), false, nil)
}

// NewChannelNotConfiguredError reports a channel without credentials or adapter.
func NewChannelNotConfiguredError(channel string) *StandardError {
	return newError(ErrCodeChannelNotConfigured, "Delivery channel is not configured",
		fmt.Sprintf("channel: %s", channel), false, nil)
}

// NewNotificationSendFailedError creates a retryable delivery error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Failed to send notification",
		fmt.Sprintf("notificationType: %s, error: %v", notificationType, err), true, err)
}

// NewDuplicateNotificationError reports a dedup key that already has a record.
func NewDuplicateNotificationError(dedupKey string) *StandardError {
	return newError(ErrCodeDuplicateNotification, "Notification already exists for dedup key",
		fmt.Sprintf("dedupKey: %s", dedupKey), false, nil)
}

// NewInvalidStatusTransitionError reports a rejected state machine move.
func NewInvalidStatusTransitionError(from, to string) *StandardError {
	return newError(ErrCodeInvalidStatusTransition, "Invalid notification status transition",
		fmt.Sprintf("from: %s, to: %s", from, to), false, nil)
}

// NewNotificationNotFoundError reports an unknown notification id.
func NewNotificationNotFoundError(id string) *StandardError {
	return newError(ErrCodeNotificationNotFound, "Notification not found",
		fmt.Sprintf("notificationId: %s", id), false, nil)
}

// NewInvalidInputError creates a non-retryable validation error.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Input validation failed", details, false, nil)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryName string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("query: %s, error: %s", queryName, err.Error()), true, err)
}

// NewDatabaseInsertFailedError creates a retryable insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert error", err.Error(), true, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidContract:          "INVALID_CONTRACT",
	ErrCodeScheduleOverflow:         "SCHEDULE_OVERFLOW",
	ErrCodeTemplateNotFound:         "TEMPLATE_NOT_FOUND",
	ErrCodeChannelNotConfigured:     "CHANNEL_NOT_CONFIGURED",
	ErrCodeNotificationSendFailed:   "NOTIFICATION_SEND_FAILED",
	ErrCodeNotificationSuppressed:   "NOTIFICATION_SUPPRESSED",
	ErrCodeDuplicateNotification:    "DUPLICATE_NOTIFICATION",
	ErrCodeInvalidStatusTransition:  "INVALID_STATUS_TRANSITION",
	ErrCodeNotificationNotFound:     "NOTIFICATION_NOT_FOUND",
	ErrCodeInvalidInput:             "INVALID_INPUT",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:     "QUERY_EXECUTION_FAILED",
	ErrCodeDatabaseInsertFailed:     "DATABASE_INSERT_FAILED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeNotificationSendFailed:
		return 3
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"errorCategory":     GetErrorCategory(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeTemplateNotFound, ErrCodeChannelNotConfigured:
		return CategoryConfiguration
	case ErrCodeNotificationSendFailed:
		return CategoryTransient
	case ErrCodeInvalidContract, ErrCodeScheduleOverflow:
		return CategoryData
	case ErrCodeNotificationSuppressed, ErrCodeDuplicateNotification:
		return CategorySuppressed
	}

	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return CategoryDatabase
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return CategoryValidation
	default:
		return CategoryOther
	}
}

// AsStandardError extracts a StandardError from an error chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}
