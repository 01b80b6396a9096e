package retryio

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultConnectionTimeout = 30 * time.Second

// HTTPOpenerOptions contains optional parameters that are used to create an
// HTTPOpener. The options may be nil.
type HTTPOpenerOptions struct {
	// TokenProvider is called before every request; the returned token is
	// sent as a bearer token. No authorization header is sent when nil.
	TokenProvider func() (string, error)
	// ConnectionTimeout bounds dialing and the TLS handshake, but not the
	// lifetime of the opened stream (default: 30s).
	ConnectionTimeout time.Duration
	// Middleware wraps the underlying transport, e.g. with tracing.
	Middleware Middleware
	// HTTPClient replaces the constructed client entirely. When set,
	// ConnectionTimeout and Middleware have no effect.
	HTTPClient *http.Client
}

func (o *HTTPOpenerOptions) withDefaults() *HTTPOpenerOptions {
	var copyOptions HTTPOpenerOptions
	if o != nil {
		copyOptions = *o
	}
	if copyOptions.ConnectionTimeout == 0 {
		copyOptions.ConnectionTimeout = defaultConnectionTimeout
	}
	return &copyOptions
}

// NewHTTPOpener creates an ObjectOpener that fetches objects over HTTP(S).
// Objects are referenced by their URL, given either as a string or as a
// fmt.Stringer. Reopening at an offset is expressed as a range request, so
// the server must support range requests for resumption to work; a server
// that ignores the range is reported as an error rather than silently
// delivering bytes from the wrong position.
func NewHTTPOpener(options *HTTPOpenerOptions) ObjectOpener {
	options = options.withDefaults()

	client := options.HTTPClient
	if client == nil {
		client = newHTTPStream(options.ConnectionTimeout, options.Middleware)
	}

	return &httpOpener{
		client:        client,
		tokenProvider: options.TokenProvider}
}

type httpOpener struct {
	client        *http.Client
	tokenProvider func() (string, error)
}

func (o *httpOpener) Open(object interface{}) (ByteSource, error) {
	return o.open(object, 0)
}

func (o *httpOpener) OpenAt(object interface{}, offset int64) (ByteSource, error) {
	if offset < 0 {
		return nil, errors.Errorf("invalid offset %d", offset)
	}
	return o.open(object, offset)
}

func (o *httpOpener) open(object interface{}, offset int64) (ByteSource, error) {
	url, err := objectURL(object)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to prepare request")
	}
	if offset > 0 {
		request.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if o.tokenProvider != nil {
		token, err := o.tokenProvider()
		if err != nil {
			return nil, errors.Wrap(err, "unable to prepare request")
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := o.client.Do(request)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %q", url)
	}

	if offset > 0 && response.StatusCode != http.StatusPartialContent {
		response.Body.Close()
		return nil, errors.Errorf("unable to open %q at offset %d: unexpected response code %d", url, offset, response.StatusCode)
	}
	if offset == 0 && response.StatusCode != http.StatusOK && response.StatusCode != http.StatusPartialContent {
		response.Body.Close()
		return nil, errors.Errorf("unable to open %q: unexpected response code %d", url, response.StatusCode)
	}

	return SourceFromReadCloser(response.Body), nil
}

func objectURL(object interface{}) (string, error) {
	switch url := object.(type) {
	case string:
		return url, nil
	case fmt.Stringer:
		return url.String(), nil
	}
	return "", errors.Errorf("object reference must be a URL string, got %T", object)
}
