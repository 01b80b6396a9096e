package retryio

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	defaultInitialRetryInterval = 50 * time.Millisecond
	defaultMaxRetryInterval     = time.Minute
)

// A Backoff decides how long to wait between attempts and whether the retry
// budget for a failure is used up. AwaitNextAttempt blocks for the wait
// interval preceding the given attempt; attempt numbering starts at 1. A
// returned error signals that no further attempts should be made, the
// caller must treat it as terminal for the current operation.
type Backoff interface {
	AwaitNextAttempt(cause error, attempt int, maxAttempts int) error
}

// backOffConfiguration holds the parameters of the exponential backoff used
// when no explicit Backoff policy is configured.
type backOffConfiguration struct {
	// The initial (minimal) retry interval used for the exponential backoff.
	InitialRetryInterval time.Duration
	// MaxRetryInterval is the maximum retry interval. Once the exponential
	// backoff reaches this value the retry intervals remain constant.
	MaxRetryInterval time.Duration
	// MaxElapsedTime is the maximum time spent on retries. Once this value
	// is reached the backoff reports exhaustion. 0 means no time limit, the
	// attempt budget of the Reader is the only bound.
	MaxElapsedTime time.Duration
}

// create initializes a new backoff from the configuration.
func (rc *backOffConfiguration) create() backoff.BackOff {
	back := backoff.NewExponentialBackOff()
	back.InitialInterval = rc.InitialRetryInterval
	back.MaxInterval = rc.MaxRetryInterval
	back.MaxElapsedTime = rc.MaxElapsedTime
	back.Reset()
	return back
}

// NewBackoff adapts any backoff.BackOff to the Backoff policy interface.
// The underlying backoff is reset whenever a new sequence of attempts
// begins, so intervals grow within one read operation and start over with
// the next.
func NewBackoff(back backoff.BackOff) Backoff {
	return &policyAdapter{back: back}
}

type policyAdapter struct {
	back backoff.BackOff
}

func (p *policyAdapter) AwaitNextAttempt(_ error, attempt int, maxAttempts int) error {
	if attempt == 1 {
		p.back.Reset()
	}

	next := p.back.NextBackOff()
	if next == backoff.Stop {
		return errors.Errorf("backoff gave up before attempt %d of %d", attempt, maxAttempts)
	}

	time.Sleep(next)
	return nil
}
