package delivery

import (
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts     = 5
	defaultBaseRetryDelay  = 30 * time.Second
	defaultMaxRetryDelay   = 10 * time.Minute
	defaultMaxJitterMillis = 5000
)

// RetryPolicy bounds how often and how fast a failed delivery is retried.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxJitterMillis int

	randIntn func(n int) int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttempts,
		BaseDelay:       defaultBaseRetryDelay,
		MaxDelay:        defaultMaxRetryDelay,
		MaxJitterMillis: defaultMaxJitterMillis,
		randIntn:        rand.Intn,
	}
}

// ShouldRetry reports whether another attempt is allowed after attemptNumber
// attempts have been made.
func (p RetryPolicy) ShouldRetry(attemptNumber int) bool {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return attemptNumber < maxAttempts
}

// Delay returns the backoff before the next attempt: base doubled per prior
// attempt, capped at MaxDelay, plus random jitter to spread thundering herds.
func (p RetryPolicy) Delay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseRetryDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxRetryDelay
	}

	delay := base
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxDelay {
			delay = maxDelay
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	jitterMillis := 0
	randFn := p.randIntn
	if randFn == nil {
		randFn = rand.Intn
	}
	if p.MaxJitterMillis > 0 {
		jitterMillis = randFn(p.MaxJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}
