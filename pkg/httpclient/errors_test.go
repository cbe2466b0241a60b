package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// makeResponse creates an *http.Response with the given status code and body string.
func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// structuredError builds a standard JSON error body.
func structuredError(code, message string) string {
	return `{"error":{"code":"` + code + `","message":"` + message + `"}}`
}

func TestParseResponseError_KnownCodeIsPreserved(t *testing.T) {
	resp := makeResponse(http.StatusNotFound, structuredError("PRODUCT_NOT_FOUND", "product not found"))
	err := ParseResponseError(resp, "catalog")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, apperrors.CodeProductNotFound, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Contains(t, appErr.Message, "catalog")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestParseResponseError_ByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   apperrors.Code
		class  error
	}{
		{"bad request", http.StatusBadRequest, structuredError("BAD", "missing amount"), apperrors.CodeInvalidInput, apperrors.ErrValidation},
		{"unprocessable", http.StatusUnprocessableEntity, `nope`, apperrors.CodeInvalidInput, apperrors.ErrValidation},
		{"payment required", http.StatusPaymentRequired, structuredError("CARD", "insufficient funds"), apperrors.CodePaymentDeclined, apperrors.ErrResource},
		{"conflict", http.StatusConflict, ``, apperrors.CodeInvalidStateTransition, apperrors.ErrState},
		{"too many requests", http.StatusTooManyRequests, ``, apperrors.CodeServiceUnavailable, apperrors.ErrTransient},
		{"server error", http.StatusInternalServerError, `boom`, apperrors.CodeServiceUnavailable, apperrors.ErrTransient},
		{"bad gateway", http.StatusBadGateway, `<html>502</html>`, apperrors.CodeServiceUnavailable, apperrors.ErrTransient},
		{"forbidden", http.StatusForbidden, ``, apperrors.CodeInvalidInput, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(makeResponse(tt.status, tt.body), "payments")
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.ErrorIs(t, err, tt.class)
		})
	}
}

func TestParseResponseError_UnstructuredBodyKeptInMessage(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusServiceUnavailable, "upstream down"), "payments")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Contains(t, err.Error(), "503")
}

func TestParseResponseError_StructuredButNullError(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusBadRequest, `{"error":null}`), "payments")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), `{"error":null}`)
}

func TestParseResponseError_UnexpectedStatus(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusFound, ""), "payments")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeInternal, appErr.Code)
	assert.Equal(t, http.StatusFound, appErr.Status)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(399))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
