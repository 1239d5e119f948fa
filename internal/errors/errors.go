// Package errors provides the categorized error taxonomy for the tracker.
// Categories distinguish upstream unavailability (gateway-class) from
// internal failures so callers can decide whether a retry is worthwhile.
package errors

import (
	"fmt"
	"net/http"

	"github.com/h4x0r/concordium-node-map-sub002/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUpstream represents failures of the dashboard or chain RPC sources
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryPartialFetch represents a fetch that returned some but not all data
	CategoryPartialFetch ErrorCategory = "partial_fetch"
	// CategoryAuthorization represents bearer-token failures
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryValidation represents invalid caller input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryDatabase represents persistent store failures
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache failures
	CategoryCache ErrorCategory = "cache"
	// CategorySystem represents unexpected internal failures
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewUpstreamUnavailableError creates a gateway-class error for an upstream
// source that failed entirely or returned no usable data.
func NewUpstreamUnavailableError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    fmt.Sprintf("upstream source unavailable: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewUpstreamTimeoutError creates a gateway-timeout error for an upstream
// source that exceeded its wall-clock budget.
func NewUpstreamTimeoutError(source string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "UPSTREAM_TIMEOUT",
		Message:    fmt.Sprintf("upstream source timed out: %s", source),
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewPartialFetchError records a fetch where a subset of the expected data
// failed. Jobs proceed with what they have and surface this in fetchErrors;
// it is never fatal to a cycle on its own.
func NewPartialFetchError(source string, failed int, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPartialFetch,
		StatusCode: http.StatusOK,
		Code:       "PARTIAL_FETCH",
		Message:    fmt.Sprintf("partial fetch from %s: %d items failed", source, failed),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
			"failed": failed,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	if svcErr, ok := err.(*types.ServiceError); ok {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUpstream reports whether the error is a gateway-class upstream failure
func IsUpstream(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryUpstream
}

// IsPartialFetch reports whether the error records a degraded-success fetch
func IsPartialFetch(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryPartialFetch
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryUpstream, CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}
