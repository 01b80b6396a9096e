package retryio

import (
	"net"
	"net/http"
	"time"
)

// Middleware wraps the transport of an HTTP client with additional
// behavior, e.g. tracing.
type Middleware func(*http.Transport) http.RoundTripper

// newHTTPStream returns an http client suitable for long running object
// fetches: dialing and the TLS handshake are bounded by the timeout, the
// lifetime of the response body is not.
func newHTTPStream(timeout time.Duration, middleware Middleware) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		Dial:                (&net.Dialer{Timeout: timeout}).Dial,
		TLSHandshakeTimeout: timeout,
	}

	client := &http.Client{Transport: transport}
	if middleware != nil {
		client.Transport = middleware(transport)
	}

	return client
}
