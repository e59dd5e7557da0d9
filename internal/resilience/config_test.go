package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/buyer-universe/internal/config"
)

func TestFromConfig(t *testing.T) {
	p, bc := FromConfig(config.RetryConfig{
		MaxAttempts:      5,
		InitialBackoffMs: 100,
		MaxBackoffMs:     2000,
		Multiplier:       3,
		JitterFraction:   0,
		FailureThreshold: 2,
		ResetTimeoutSecs: 10,
	})

	assert.Equal(t, 5, p.Attempts)
	assert.Equal(t, 100*time.Millisecond, p.Base)
	assert.Equal(t, 2*time.Second, p.Cap)
	assert.Equal(t, 3.0, p.Factor)
	assert.Equal(t, 0.0, p.Jitter)
	assert.NotNil(t, p.Retryable)
	assert.Equal(t, 2, bc.Threshold)
	assert.Equal(t, 10*time.Second, bc.Cooldown)
}

func TestFromConfig_ZeroKeepsDefaults(t *testing.T) {
	p, bc := FromConfig(config.RetryConfig{JitterFraction: -1})

	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 500*time.Millisecond, p.Base)
	assert.Equal(t, 30*time.Second, p.Cap)
	assert.Equal(t, 0.0, p.Jitter)

	b := NewBreaker(bc)
	assert.Equal(t, defaultThreshold, b.cfg.Threshold)
	assert.Equal(t, defaultCooldown, b.cfg.Cooldown)
}
