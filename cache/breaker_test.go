package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Now()
	b := NewCircuitBreaker(5, 3, 60*time.Second)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker()
	for i := 0; i < 4; i++ {
		b.OnFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()
	for i := 0; i < 4; i++ {
		b.OnFailure()
	}
	b.OnSuccess()
	assert.Equal(t, 0, b.Failures())

	for i := 0; i < 4; i++ {
		b.OnFailure()
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.OnFailure()
	}
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	*now = now.Add(61 * time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.OnFailure()
	}
	*now = now.Add(61 * time.Second)
	assert.NoError(t, b.Allow())

	b.OnSuccess()
	b.OnSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.OnSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.OnFailure()
	}
	*now = now.Add(61 * time.Second)
	assert.NoError(t, b.Allow())
	b.OnSuccess()

	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// the recovery clock restarts from the reopen
	*now = now.Add(59 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
	*now = now.Add(2 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
