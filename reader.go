package retryio

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultMaxRetries = 3

// ReaderOptions contains optional parameters that are used to create a
// Reader. The options may be nil, in which case the defaults documented on
// the individual fields apply.
type ReaderOptions struct {
	// RetryPredicate decides whether a failure may be retried on the same
	// source after waiting for the backoff. Defaults to NeverRetry.
	RetryPredicate Predicate
	// ResetPredicate decides whether a failure means the source was dropped
	// and must be reopened at the current position after waiting for the
	// backoff. Defaults to IsConnectionReset.
	ResetPredicate Predicate
	// MaxRetries is the number of guarded delegate calls each read operation
	// performs before one final unguarded call, so the total number of
	// delegate calls per operation is MaxRetries+1 (default: 3). A negative
	// value disables the guarded loop entirely: every operation performs
	// exactly one raw delegate call whose failure propagates unchanged.
	MaxRetries int
	// Backoff is the wait policy consulted between attempts. When nil, an
	// exponential backoff configured by the three interval fields below is
	// used.
	Backoff Backoff
	// The initial (minimal) retry interval used for the default exponential
	// backoff.
	InitialRetryInterval time.Duration
	// MaxRetryInterval is the maximum retry interval of the default
	// exponential backoff. Once the interval reaches this value it remains
	// constant.
	MaxRetryInterval time.Duration
	// MaxElapsedTime is the maximum time the default backoff spends on
	// retries before it reports exhaustion. 0 means no time limit.
	MaxElapsedTime time.Duration
	// Log receives a warning when closing a discarded source fails and an
	// info line before every reopen. The zero value discards all messages.
	Log zerolog.Logger
}

func (o *ReaderOptions) withDefaults() *ReaderOptions {
	var copyOptions ReaderOptions
	if o != nil {
		copyOptions = *o
	}
	if copyOptions.RetryPredicate == nil {
		copyOptions.RetryPredicate = NeverRetry
	}
	if copyOptions.ResetPredicate == nil {
		copyOptions.ResetPredicate = IsConnectionReset
	}
	if copyOptions.MaxRetries == 0 {
		copyOptions.MaxRetries = defaultMaxRetries
	} else if copyOptions.MaxRetries < 0 {
		copyOptions.MaxRetries = 0
	}
	if copyOptions.InitialRetryInterval == 0 {
		copyOptions.InitialRetryInterval = defaultInitialRetryInterval
	}
	if copyOptions.MaxRetryInterval == 0 {
		copyOptions.MaxRetryInterval = defaultMaxRetryInterval
	}
	if copyOptions.Backoff == nil {
		conf := backOffConfiguration{
			InitialRetryInterval: copyOptions.InitialRetryInterval,
			MaxRetryInterval:     copyOptions.MaxRetryInterval,
			MaxElapsedTime:       copyOptions.MaxElapsedTime}
		copyOptions.Backoff = NewBackoff(conf.create())
	}
	return &copyOptions
}

// A Reader is a sequential byte stream that decorates the source opened for
// an object and recovers from transient failures. On a reset classified
// failure it discards the current source and reopens the object at the
// position reached so far; on a retryable failure it waits and retries the
// same source. All other failures surface to the caller with the original
// failure preserved as the cause.
//
// A Reader is not safe for concurrent use. It is designed for exactly one
// logical reader at a time, matching sequential object fetch semantics.
type Reader struct {
	object         interface{}
	opener         ObjectOpener
	retryPredicate Predicate
	resetPredicate Predicate
	maxRetries     int
	backoff        Backoff
	log            zerolog.Logger

	source *countingSource
	offset int64
}

var _ ByteSource = (*Reader)(nil)

// NewReader opens the object from the beginning and returns a Reader that
// consumes it. The initial open is not retried; only read operations are.
func NewReader(object interface{}, opener ObjectOpener, options *ReaderOptions) (*Reader, error) {
	options = options.withDefaults()

	source, err := opener.Open(object)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open object")
	}

	return &Reader{
		object:         object,
		opener:         opener,
		retryPredicate: options.RetryPredicate,
		resetPredicate: options.ResetPredicate,
		maxRetries:     options.MaxRetries,
		backoff:        options.Backoff,
		log:            options.Log,
		source:         newCountingSource(source),
	}, nil
}

// Read reads up to len(p) bytes into p. When bytes were delivered before a
// failure they are handed to the caller right away and the failure
// resurfaces on the next call; recovery only ever runs on calls that
// delivered nothing.
func (r *Reader) Read(p []byte) (int, error) {
	for try := 0; try < r.maxRetries; try++ {
		n, err := r.source.Read(p)
		if err == nil || err == io.EOF {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		if terminal := r.recover(err, try); terminal != nil {
			return 0, terminal
		}
	}
	return r.source.Read(p)
}

// ReadByte reads and returns a single byte.
func (r *Reader) ReadByte() (byte, error) {
	for try := 0; try < r.maxRetries; try++ {
		b, err := r.source.ReadByte()
		if err == nil || err == io.EOF {
			return b, err
		}
		if terminal := r.recover(err, try); terminal != nil {
			return 0, terminal
		}
	}
	return r.source.ReadByte()
}

// Skip discards up to n bytes and returns the number of bytes actually
// discarded. Skipped bytes count as delivered: a reopen after a skip
// resumes past the skipped range.
func (r *Reader) Skip(n int64) (int64, error) {
	for try := 0; try < r.maxRetries; try++ {
		skipped, err := r.source.Skip(n)
		if err == nil || err == io.EOF {
			return skipped, err
		}
		if skipped > 0 {
			return skipped, nil
		}
		if terminal := r.recover(err, try); terminal != nil {
			return 0, terminal
		}
	}
	return r.source.Skip(n)
}

// Available returns the number of bytes that can be read without blocking.
func (r *Reader) Available() (int, error) {
	for try := 0; try < r.maxRetries; try++ {
		available, err := r.source.Available()
		if err == nil {
			return available, nil
		}
		if terminal := r.recover(err, try); terminal != nil {
			return 0, terminal
		}
	}
	return r.source.Available()
}

// Close closes the current source. It is not retried and any failure
// propagates directly.
func (r *Reader) Close() error {
	return r.source.Close()
}

// recover is invoked after a failed delegate call with the failure and the
// current attempt index. It returns nil when the operation should be tried
// again, or the terminal error that ends the operation. The invariant
// maintained here: offset plus the bytes delivered by the current source
// always equals the total number of bytes returned to the caller.
func (r *Reader) recover(cause error, try int) error {
	reset := r.resetPredicate(cause)

	if !reset && !r.retryPredicate(cause) {
		return errors.Wrap(cause, "unrecoverable error reading object")
	}

	if reset {
		r.offset += r.source.Count()
		if err := r.source.Close(); err != nil {
			// The source is discarded either way, so the failure is only logged.
			r.log.Warn().Err(err).Msg("unable to close failed source")
		}
	}

	if err := r.backoff.AwaitNextAttempt(cause, try+1, r.maxRetries); err != nil {
		return errors.Wrapf(cause, "no attempts left (%s)", err)
	}

	if reset {
		r.log.Info().Int64("offset", r.offset).Msg("resuming from offset")
		source, err := r.opener.OpenAt(r.object, r.offset)
		if err != nil {
			return errors.Wrapf(cause, "unable to reopen object at offset %d (%s)", r.offset, err)
		}
		r.source = newCountingSource(source)
	}

	return nil
}
