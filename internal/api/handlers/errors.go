package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/drafts/internal/draft"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// APIError represents an API error
type APIError struct {
	Message    string
	StatusCode int
	Code       string
	Fields     map[string]string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest   = &APIError{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrInternalServer   = &APIError{Message: "Internal server error", StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
	ErrSubmissionFailed = &APIError{Message: "Submission failed, the draft was kept", StatusCode: http.StatusBadGateway, Code: "SUBMISSION_FAILED"}
	ErrCatalogFailed    = &APIError{Message: "Catalog unavailable", StatusCode: http.StatusBadGateway, Code: "CATALOG_UNAVAILABLE"}
)

// NewError creates a new API error with custom details
func NewError(message string, statusCode int, code string) *APIError {
	return &APIError{
		Message:    message,
		StatusCode: statusCode,
		Code:       code,
	}
}

// toAPIError maps domain errors to API errors. Anything unrecognised becomes
// fallback.
func toAPIError(err error, fallback *APIError) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *draft.ValidationError
	if errors.As(err, &verr) {
		return &APIError{
			Message:    "Validation failed",
			StatusCode: http.StatusUnprocessableEntity,
			Code:       "VALIDATION_ERROR",
			Fields:     verr.Fields,
		}
	}

	switch {
	case errors.Is(err, draft.ErrUnknownType):
		return NewError(err.Error(), http.StatusBadRequest, "UNKNOWN_DRAFT_TYPE")
	case errors.Is(err, draft.ErrEntityRequired):
		return NewError(err.Error(), http.StatusBadRequest, "ENTITY_REQUIRED")
	case errors.Is(err, draft.ErrNoActiveContext):
		return NewError(err.Error(), http.StatusConflict, "NO_ACTIVE_CONTEXT")
	case errors.Is(err, draft.ErrNoPendingSwitch):
		return NewError(err.Error(), http.StatusConflict, "NO_PENDING_SWITCH")
	case errors.Is(err, draft.ErrContextMismatch):
		return NewError(err.Error(), http.StatusConflict, "CONTEXT_MISMATCH")
	case errors.Is(err, draft.ErrEmptyDraft):
		return NewError(err.Error(), http.StatusConflict, "EMPTY_DRAFT")
	case errors.Is(err, draft.ErrSubmissionRejected):
		return NewError(err.Error(), http.StatusUnprocessableEntity, "SUBMISSION_REJECTED")
	}
	// transport failures are shown to the user as they came back
	if fallback == ErrSubmissionFailed {
		return NewError(fallback.Message+": "+err.Error(), fallback.StatusCode, fallback.Code)
	}
	return fallback
}

// WriteError aborts the request with the API form of err
func WriteError(c *gin.Context, err error, fallback *APIError) {
	apiErr := toAPIError(err, fallback)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.StatusCode, ErrorResponse{
		Message: apiErr.Message,
		Code:    apiErr.Code,
		Fields:  apiErr.Fields,
	})
}
