package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Hour})

	for range 2 {
		cb.Failure()
	}
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	cb.Failure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	cb.Failure()
	cb.Success()
	cb.Failure()

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})

	cb.Failure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.Success()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.Success()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Millisecond})

	cb.Failure()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.Failure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestRetryableError(t *testing.T) {
	assert.False(t, retryableError(nil))
	assert.False(t, retryableError(assert.AnError))
	assert.True(t, retryableError(errTest("429 Too Many Requests")))
	assert.True(t, retryableError(errTest("Rate Limit exceeded")))
	assert.True(t, retryableError(errTest("503 Service Unavailable")))
	assert.True(t, retryableError(errTest("connection reset by peer")))
	assert.False(t, retryableError(errTest("invalid argument")))
}

type errTest string

func (e errTest) Error() string { return string(e) }
