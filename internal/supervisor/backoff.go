package supervisor

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Restart policies accepted by NewBackOff.
const (
	PolicyConstant    = "constant"
	PolicyExponential = "exponential"
)

// NewBackOff builds the delay schedule between process restarts. A
// positive attempts value bounds the number of restarts; zero means
// unlimited.
func NewBackOff(policy string, delay, maxDelay time.Duration, attempts int) (backoff.BackOff, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("restart delay must be positive, got %s", delay)
	}
	if attempts < 0 {
		return nil, fmt.Errorf("restart attempts must not be negative, got %d", attempts)
	}

	var b backoff.BackOff
	switch policy {
	case "", PolicyConstant:
		b = backoff.NewConstantBackOff(delay)
	case PolicyExponential:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = delay
		exp.MaxInterval = max(maxDelay, delay)
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	default:
		return nil, fmt.Errorf("unknown restart policy %q", policy)
	}

	if attempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(attempts))
	}
	return b, nil
}
