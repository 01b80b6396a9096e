// Package retryio provides a resilient sequential byte-stream reader. A
// Reader wraps an underlying data source, typically a remote object fetch,
// and transparently recovers from transient failures including mid-stream
// connection resets, without losing already consumed progress or corrupting
// the byte sequence seen by the caller.
//
// The package keeps three concerns separate: classifying failures via two
// pluggable predicates (retryable on the same source vs. "the source was
// dropped and must be reopened at an offset"), tracking exactly how many
// bytes have been delivered so a reopen resumes at the correct position, and
// presenting a perfectly ordinary blocking read contract to the caller.
//
// How the object reference is turned into a live byte stream is up to the
// ObjectOpener. The package ships an HTTP implementation which resumes
// interrupted fetches with range requests, see NewHTTPOpener. The wait
// between attempts is delegated to a Backoff policy; the default performs
// an exponential backoff backed by the `cenkalti/backoff` package.
package retryio

import "io"

// A ByteSource is a blocking, sequential byte stream. It is the contract a
// Reader presents to its callers as well as the contract it consumes from
// the sources produced by an ObjectOpener.
type ByteSource interface {
	io.Reader
	io.ByteReader
	io.Closer

	// Skip discards up to n bytes and returns the number of bytes actually
	// discarded. Reaching the end of the stream is not an error; Skip simply
	// returns how far it got.
	Skip(n int64) (int64, error)

	// Available returns the number of bytes that can be read without
	// blocking. Sources that cannot know this report 0.
	Available() (int, error)
}

// An ObjectOpener turns an opaque object reference into a live ByteSource.
// It is the capability a Reader uses to open its object initially and to
// reopen it after the source was dropped.
type ObjectOpener interface {
	// Open opens the object from the beginning.
	Open(object interface{}) (ByteSource, error)

	// OpenAt opens the object such that the first delivered byte is the byte
	// at the given absolute offset. Implementations must report an error if
	// the offset is invalid or the object is unreadable; they must never
	// silently return a stream at the wrong position.
	OpenAt(object interface{}, offset int64) (ByteSource, error)
}

// SourceFromReadCloser adapts a plain io.ReadCloser, such as an HTTP
// response body or a file, to the ByteSource interface. The value is
// returned unchanged if it already implements ByteSource.
func SourceFromReadCloser(r io.ReadCloser) ByteSource {
	if source, ok := r.(ByteSource); ok {
		return source
	}
	return &readCloserSource{r: r}
}

type readCloserSource struct {
	r io.ReadCloser
}

func (s *readCloserSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *readCloserSource) ReadByte() (byte, error) {
	if br, ok := s.r.(io.ByteReader); ok {
		return br.ReadByte()
	}

	var buffer [1]byte
	for {
		n, err := s.r.Read(buffer[:])
		if n > 0 {
			return buffer[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (s *readCloserSource) Skip(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	skipped, err := io.CopyN(io.Discard, s.r, n)
	if err == io.EOF {
		return skipped, nil
	}
	return skipped, err
}

func (s *readCloserSource) Available() (int, error) {
	// Without buffering there is nothing reliable to report.
	return 0, nil
}

func (s *readCloserSource) Close() error {
	return s.r.Close()
}
