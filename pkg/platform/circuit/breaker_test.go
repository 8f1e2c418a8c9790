package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func TestBreakerLifecycle(t *testing.T) {
	b := New("kafka-notifications", WithFailureThreshold(2), WithSuccessThreshold(2), WithCooldown(time.Minute))
	require.Equal(t, StateClosed, b.State())

	assert.False(t, b.Failure(t0))
	assert.True(t, b.Failure(t0), "second consecutive failure opens")
	assert.Equal(t, StateOpen, b.State())

	assert.False(t, b.Allow(t0.Add(30*time.Second)))
	assert.True(t, b.Allow(t0.Add(time.Minute)), "trial call after cooldown")

	assert.False(t, b.Success())
	assert.True(t, b.Success(), "second successful trial call closes")
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow(t0))
}

func TestFailedTrialRestartsCooldown(t *testing.T) {
	b := New("kafka-notifications", WithFailureThreshold(1), WithCooldown(time.Minute))
	require.True(t, b.Failure(t0))

	trial := t0.Add(time.Minute)
	require.True(t, b.Allow(trial))
	assert.False(t, b.Failure(trial), "already open")

	assert.False(t, b.Allow(trial.Add(59*time.Second)))
	assert.True(t, b.Allow(trial.Add(time.Minute)))
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New("kafka-notifications", WithFailureThreshold(3))
	b.Failure(t0)
	b.Failure(t0)
	assert.False(t, b.Success())
	assert.False(t, b.Failure(t0))
	assert.False(t, b.Failure(t0))
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Failure(t0))
}

func TestTrialSuccessesInterruptedByFailure(t *testing.T) {
	b := New("kafka-notifications", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.Failure(t0)
	b.Success()
	b.Failure(t0)
	assert.False(t, b.Success(), "trial streak starts over")
	assert.True(t, b.Success())
}

func TestOptionsIgnoreNonPositiveThresholds(t *testing.T) {
	b := New("x", WithFailureThreshold(0), WithSuccessThreshold(-1))
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 2, b.successThreshold)
	assert.Equal(t, "x", b.Name())
}
