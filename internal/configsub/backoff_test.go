package configsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_SuccessResets(t *testing.T) {
	b := DefaultBackoffPolicy()
	b.OnUnconfiguredError()
	b.OnUnconfiguredError()

	assert.Equal(t, b.SuccessDelay, b.OnSuccess())

	next := b.OnUnconfiguredError()
	assert.Equal(t, b.UnconfiguredDelay, next, "delay must restart from one unit after a reset")
}

func TestBackoffPolicy_LinearGrowthSaturates(t *testing.T) {
	b := BackoffPolicy{
		SuccessDelay:       time.Second,
		UnconfiguredDelay:  time.Second,
		MaxDelayMultiplier: 3,
	}

	assert.Equal(t, 1*time.Second, b.OnUnconfiguredError())
	assert.Equal(t, 2*time.Second, b.OnUnconfiguredError())
	assert.Equal(t, 3*time.Second, b.OnUnconfiguredError())
	assert.Equal(t, 3*time.Second, b.OnUnconfiguredError(), "must saturate at the ceiling, not keep growing")
}

func TestBackoffPolicy_ConfiguredErrorIndependentCounter(t *testing.T) {
	b := BackoffPolicy{
		SuccessDelay:         time.Second,
		UnconfiguredDelay:    time.Second,
		ConfiguredErrorDelay: 5 * time.Second,
		MaxDelayMultiplier:   10,
	}

	b.OnUnconfiguredError()
	delay := b.OnConfiguredError()
	assert.Equal(t, 5*time.Second, delay, "switching error kind must not inherit the other kind's counter")
}
