package retryio

import (
	"net"
	"strings"
	"syscall"
)

// A Predicate classifies a failure of the underlying source. Predicates are
// used in two roles: the retry predicate answers "may this operation be
// retried on the same source", the reset predicate answers "was the source
// dropped, so that it must be reopened at the current position".
type Predicate func(err error) bool

// maxCauseDepth bounds the walk along a failure's cause chain. Malformed
// chains can be cyclic.
const maxCauseDepth = 32

// NeverRetry is the default retry predicate. It rejects every failure.
func NeverRetry(error) bool {
	return false
}

// IsConnectionReset is the default reset predicate. It reports whether the
// failure, or any cause in its chain, is a socket level error indicating
// that the peer dropped the connection.
func IsConnectionReset(err error) bool {
	for depth := 0; err != nil && depth < maxCauseDepth; depth++ {
		if errno, ok := err.(syscall.Errno); ok && errno == syscall.ECONNRESET {
			return true
		}
		if opErr, ok := err.(*net.OpError); ok && strings.Contains(opErr.Err.Error(), "connection reset") {
			return true
		}
		err = unwrapCause(err)
	}
	return false
}

// unwrapCause follows a failure's chain one level down. It understands both
// the Cause convention of the `pkg/errors` package and the standard library
// Unwrap convention.
func unwrapCause(err error) error {
	type causer interface {
		Cause() error
	}
	type wrapper interface {
		Unwrap() error
	}

	if c, ok := err.(causer); ok {
		return c.Cause()
	}
	if w, ok := err.(wrapper); ok {
		return w.Unwrap()
	}
	return nil
}
