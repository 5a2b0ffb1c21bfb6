package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeDBConnection, "failed to connect")

	assert.Equal(t, ErrCodeDBConnection, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DB_CONNECTION_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := New(ErrCodeSingularMatrix, "covariance matrix is singular")
	outer := fmt.Errorf("solve failed: %w", inner)

	assert.True(t, Is(outer, ErrCodeSingularMatrix))
	assert.False(t, Is(outer, ErrCodeInvalidPortfolio))
	assert.False(t, Is(errors.New("plain"), ErrCodeSingularMatrix))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(New(ErrCodeNotFound, "missing")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeInvalidPortfolio, http.StatusBadRequest},
		{ErrCodeUnsupportedScale, http.StatusBadRequest},
		{ErrCodeInsufficientData, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeSingularMatrix, http.StatusUnprocessableEntity},
		{ErrCodeNoFeasibleSolution, http.StatusUnprocessableEntity},
		{ErrCodeMarketDataUnavailable, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, New(tt.code, "x").HTTPStatus(), string(tt.code))
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad ticker").
		WithContext("ticker", "AAPL").
		WithContext("field", "prices")

	require.NotNil(t, err.Context)
	assert.Equal(t, "AAPL", err.Context["ticker"])
	assert.Equal(t, "prices", err.Context["field"])
}

func TestDefaultSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, New(ErrCodeInternal, "x").Severity)
	assert.Equal(t, SeverityHigh, New(ErrCodeSingularMatrix, "x").Severity)
	assert.Equal(t, SeverityLow, New(ErrCodeInvalidInput, "x").Severity)
}
