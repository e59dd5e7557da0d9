package resilience

import (
	"time"

	"github.com/sells-group/buyer-universe/internal/config"
)

// FromConfig maps the retry section of the config onto a retry policy and a
// breaker config. Unset fields keep the package defaults.
func FromConfig(c config.RetryConfig) (RetryPolicy, BreakerConfig) {
	p := RetryPolicy{
		Attempts: c.MaxAttempts,
		Base:     time.Duration(c.InitialBackoffMs) * time.Millisecond,
		Cap:      time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Factor:   c.Multiplier,
		Jitter:   c.JitterFraction,
	}
	bc := BreakerConfig{
		Threshold: c.FailureThreshold,
		Cooldown:  time.Duration(c.ResetTimeoutSecs) * time.Second,
	}
	return p.withDefaults(), bc
}
