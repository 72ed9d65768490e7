package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/models"
)

// APIError is the JSON error body every route returns.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// fromServiceError maps domain sentinels onto HTTP errors.
func fromServiceError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, models.ErrDocumentNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "document not found"}
	case errors.Is(err, models.ErrAccessDenied):
		return &APIError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "access denied"}
	case errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTextTooLarge),
		errors.Is(err, models.ErrReservedMetadataKey),
		errors.Is(err, models.ErrInvalidPatch):
		return &APIError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "invalid request", Details: err.Error()}
	case errors.Is(err, models.ErrStatusConflict):
		return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: "document changed concurrently, retry", Details: err.Error()}
	}
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal error"}
}

// WriteError renders err as an APIError body.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	apiErr := fromServiceError(err)
	if apiErr.Status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, apiErr.Status, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
