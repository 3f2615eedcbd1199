package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents different types of errors
type ErrorCode string

const (
	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// Detection pipeline errors
	ErrCodeInvalidFingerprint ErrorCode = "INVALID_FINGERPRINT"
	ErrCodeAnalysisFailure    ErrorCode = "ANALYSIS_FAILURE"
	ErrCodeDependencyDegraded ErrorCode = "DEPENDENCY_DEGRADED"

	// Enforcement outcomes
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeBlocked     ErrorCode = "BLOCKED"
	ErrCodeChallenge   ErrorCode = "CHALLENGE_REQUIRED"

	// Configuration errors
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE_RULE"
	ErrCodeInvalidPattern   ErrorCode = "INVALID_ATTACK_PATTERN"
	ErrCodeInvalidRateRule  ErrorCode = "INVALID_RATE_RULE"

	// Store errors
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Internal   error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// Error constructors
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

func NewInvalidInputError(message string, details string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidInput,
		Message:    message,
		Details:    details,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    fmt.Sprintf("ID: %s", id),
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewBlockedError(reason string) *AppError {
	return &AppError{
		Code:       ErrCodeBlocked,
		Message:    "Request blocked",
		Details:    reason,
		StatusCode: http.StatusForbidden,
	}
}

func NewRateLimitedError(reason string) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    "Rate limit exceeded",
		Details:    reason,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewChallengeError(reason string) *AppError {
	return &AppError{
		Code:       ErrCodeChallenge,
		Message:    "Additional verification required",
		Details:    reason,
		StatusCode: http.StatusForbidden,
	}
}

func NewInvalidFingerprintError(details string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidFingerprint,
		Message:    "Request fingerprint is incomplete",
		Details:    details,
		StatusCode: http.StatusBadRequest,
	}
}

func NewStoreError(store string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeStoreUnavailable,
		Message:    fmt.Sprintf("Backing store unavailable: %s", store),
		StatusCode: http.StatusServiceUnavailable,
		Internal:   err,
	}
}

func NewConfigError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// IsErrorCode checks if an error matches a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Code == code
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	appErr, ok := err.(*AppError)
	if !ok {
		return http.StatusInternalServerError
	}
	return appErr.StatusCode
}

// ErrorResponse represents the JSON error response format
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ToResponse converts an AppError to an ErrorResponse
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
			Context: e.Context,
		},
	}
}

// FromError converts any error to an AppError
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("An unexpected error occurred", err)
}
