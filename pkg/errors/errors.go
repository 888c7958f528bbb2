package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeBotError   = "BOT_ERROR"
	CodeAPIError   = "API_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeCache      = "CACHE_ERROR"
	CodeService    = "SERVICE_ERROR"
	CodeInput      = "INPUT_ERROR"
)

// Discord JSON error codes that mean the interaction token can no longer be used.
const (
	PlatformUnknownWebhook      = 10015
	PlatformUnknownInteraction  = 10062
	PlatformInvalidWebhookToken = 50027
)

// ErrAmbiguousProgress is returned when more than one channel carries the progress prefix.
var ErrAmbiguousProgress = stderrors.New("more than one progress channel matches the prefix")

type BotError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BotError) Unwrap() error {
	return e.Cause
}

func NewBotError(message, code string, statusCode int, context map[string]any) *BotError {
	return &BotError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *BotError) WithCause(cause error) *BotError {
	e.Cause = cause
	return e
}

// APIError wraps a failed HTTP call. PlatformCode carries the JSON "code" field
// returned by the chat platform, when present.
type APIError struct {
	*BotError
	PlatformCode int
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

func (e *APIError) WithCause(cause error) *APIError {
	e.Cause = cause
	return e
}

func (e *APIError) WithPlatformCode(code int) *APIError {
	e.PlatformCode = code
	return e
}

// IsInteractionExpired reports whether err means the interaction can no longer be edited.
func IsInteractionExpired(err error) bool {
	var apiErr *APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.PlatformCode {
	case PlatformUnknownWebhook, PlatformUnknownInteraction, PlatformInvalidWebhookToken:
		return true
	}
	return false
}

// IsRateLimited reports whether err is an HTTP 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 429
}

type ValidationError struct {
	*BotError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*BotError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*BotError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeService,
			StatusCode: 500,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// InputError is a terminal, user-visible outcome such as "no URLs found".
// Reason is the reply text shown to the caller.
type InputError struct {
	*BotError
	Reason string
}

func NewInputError(reason string) *InputError {
	return &InputError{
		BotError: &BotError{
			Message:    reason,
			Code:       CodeInput,
			StatusCode: 400,
		},
		Reason: reason,
	}
}

// AsInputError unwraps err into an *InputError.
func AsInputError(err error) (*InputError, bool) {
	var inErr *InputError
	if stderrors.As(err, &inErr) {
		return inErr, true
	}
	return nil, false
}
