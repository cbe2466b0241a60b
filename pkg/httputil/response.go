package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Context   []apperrors.Field `json:"context,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and error code. AppErrors keep their code
// and context; operations that exhausted their retries without a domain
// error become OPERATION_FAILED. Internal errors are logged with the
// request-scoped logger when the RequestLogger middleware is mounted.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	if appErr, ok := apperrors.As(err); ok {
		status := apperrors.HTTPStatus(appErr)
		if status == http.StatusInternalServerError {
			logInternal(l, r, err)
		}
		WriteJSON(w, status, Response{
			Error: &ErrorResponse{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Context:   appErr.Context,
				RequestID: requestID,
			},
		})
		return
	}

	var opErr *retry.OperationError
	if errors.As(err, &opErr) {
		l.WarnContext(r.Context(), "operation failed after retries",
			slog.String("operation", opErr.OperationID),
			slog.Int("attempts", opErr.Attempts),
			slog.String("error", err.Error()),
		)
		WriteJSON(w, http.StatusServiceUnavailable, Response{
			Error: &ErrorResponse{
				Code:      string(apperrors.CodeOperationFailed),
				Message:   fmt.Sprintf("%s failed after %d attempts", opErr.OperationID, opErr.Attempts),
				RequestID: requestID,
			},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeInternal
	message := "an internal error occurred"

	// Bare class sentinels carry no code of their own.
	switch {
	case status == http.StatusInternalServerError:
		logInternal(l, r, err)
	case status >= http.StatusInternalServerError:
		code, message = apperrors.CodeServiceUnavailable, "service temporarily unavailable"
	default:
		code, message = apperrors.CodeInvalidInput, err.Error()
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: string(code), Message: message, RequestID: requestID},
	})
}

func logInternal(l *slog.Logger, r *http.Request, err error) {
	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

// WriteValidationError writes a 400 with field-level errors from the
// validator package.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      string(apperrors.CodeInvalidInput),
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: string(apperrors.CodeInvalidInput), Message: err.Error(), RequestID: requestID},
	})
}
