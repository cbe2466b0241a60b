package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// DownstreamErrorResponse mirrors the httputil.ErrorResponse structure. It is
// used to parse structured error bodies from downstream HTTP calls.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. A known downstream code is preserved as is; otherwise
// the status decides the code. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return apperrors.Wrap(
			apperrors.ServiceUnavailable(fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode)),
			fmt.Sprintf("read body: %v", err),
		)
	}

	code, message := "", string(bodyBytes)
	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

// mapDownstreamError translates a downstream status and error code into an
// AppError that preserves the error semantics.
func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	if c := apperrors.Code(code); apperrors.IsKnownCode(c) {
		return &apperrors.AppError{Code: c, Message: qualifiedMsg, Status: c.Status()}
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusPaymentRequired:
		return apperrors.PaymentDeclined("", qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.New(apperrors.CodeInvalidStateTransition, qualifiedMsg)
	case status == http.StatusTooManyRequests, status >= 500:
		return &apperrors.AppError{
			Code:    apperrors.CodeServiceUnavailable,
			Message: fmt.Sprintf("%s returned status %d: %s", serviceName, status, message),
			Status:  http.StatusServiceUnavailable,
		}
	case IsClientError(status):
		return &apperrors.AppError{
			Code:    apperrors.CodeInvalidInput,
			Message: qualifiedMsg,
			Status:  status,
		}
	default:
		return &apperrors.AppError{
			Code:    apperrors.CodeInternal,
			Message: fmt.Sprintf("%s returned status %d: %s", serviceName, status, message),
			Status:  status,
		}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
