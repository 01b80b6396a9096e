package retryio

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const objectURLForTest = "http://localhost:8080/objects/data.bin"

func TestNewHTTPOpener(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opener := NewHTTPOpener(nil)

		require.NotNil(t, opener)
		assert.NotNil(t, opener.(*httpOpener).client)
	})

	t.Run("with http client", func(t *testing.T) {
		opener := NewHTTPOpener(&HTTPOpenerOptions{HTTPClient: http.DefaultClient})

		assert.Same(t, http.DefaultClient, opener.(*httpOpener).client)
	})
}

func TestHTTPOpener_Open(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	opener := NewHTTPOpener(&HTTPOpenerOptions{HTTPClient: http.DefaultClient})

	t.Run("fail connection error", func(t *testing.T) {
		httpmock.RegisterResponder("GET", objectURLForTest, httpmock.NewErrorResponder(assert.AnError))

		_, err := opener.Open(objectURLForTest)

		require.Error(t, err)
		assert.Regexp(t, assert.AnError, err)
	})

	t.Run("fail unexpected response code", func(t *testing.T) {
		httpmock.RegisterResponder("GET", objectURLForTest, httpmock.NewStringResponder(http.StatusNotFound, ""))

		_, err := opener.Open(objectURLForTest)

		require.Error(t, err)
		assert.Regexp(t, "unexpected response code 404", err)
	})

	t.Run("fail invalid object reference", func(t *testing.T) {
		_, err := opener.Open(42)

		require.Error(t, err)
		assert.Regexp(t, "object reference must be a URL string", err)
	})

	t.Run("fail oauth token", func(t *testing.T) {
		tokenOpener := NewHTTPOpener(&HTTPOpenerOptions{
			HTTPClient:    http.DefaultClient,
			TokenProvider: func() (string, error) { return "", assert.AnError }})
		httpmock.RegisterResponder("GET", objectURLForTest, httpmock.NewStringResponder(http.StatusOK, "payload"))

		_, err := tokenOpener.Open(objectURLForTest)

		require.Error(t, err)
		assert.Regexp(t, assert.AnError, err)
	})

	t.Run("success oauth token", func(t *testing.T) {
		tokenOpener := NewHTTPOpener(&HTTPOpenerOptions{
			HTTPClient:    http.DefaultClient,
			TokenProvider: func() (string, error) { return "token", nil }})
		httpmock.RegisterResponder("GET", objectURLForTest, func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK, "payload"), nil
		})

		source, err := tokenOpener.Open(objectURLForTest)

		require.NoError(t, err)
		source.Close()
	})

	t.Run("success", func(t *testing.T) {
		httpmock.RegisterResponder("GET", objectURLForTest, func(r *http.Request) (*http.Response, error) {
			assert.Empty(t, r.Header.Get("Range"))
			return httpmock.NewStringResponse(http.StatusOK, "payload"), nil
		})

		source, err := opener.Open(objectURLForTest)

		require.NoError(t, err)
		defer source.Close()

		data, err := io.ReadAll(source)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
	})
}

func TestHTTPOpener_OpenAt(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	opener := NewHTTPOpener(&HTTPOpenerOptions{HTTPClient: http.DefaultClient})

	t.Run("fail negative offset", func(t *testing.T) {
		_, err := opener.OpenAt(objectURLForTest, -1)

		require.Error(t, err)
		assert.Regexp(t, "invalid offset", err)
	})

	t.Run("fail range not satisfiable", func(t *testing.T) {
		httpmock.RegisterResponder("GET", objectURLForTest,
			httpmock.NewStringResponder(http.StatusRequestedRangeNotSatisfiable, ""))

		_, err := opener.OpenAt(objectURLForTest, 1000)

		require.Error(t, err)
		assert.Regexp(t, "unexpected response code 416", err)
	})

	t.Run("fail range ignored by server", func(t *testing.T) {
		// a 200 at a non zero offset means the server delivered the object
		// from the start, which would corrupt the resumed stream
		httpmock.RegisterResponder("GET", objectURLForTest, httpmock.NewStringResponder(http.StatusOK, "payload"))

		_, err := opener.OpenAt(objectURLForTest, 3)

		require.Error(t, err)
		assert.Regexp(t, "at offset 3: unexpected response code 200", err)
	})

	t.Run("success", func(t *testing.T) {
		httpmock.RegisterResponder("GET", objectURLForTest, func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "bytes=3-", r.Header.Get("Range"))
			return httpmock.NewStringResponse(http.StatusPartialContent, "load"), nil
		})

		source, err := opener.OpenAt(objectURLForTest, 3)

		require.NoError(t, err)
		defer source.Close()

		data, err := io.ReadAll(source)
		require.NoError(t, err)
		assert.Equal(t, []byte("load"), data)
	})

	t.Run("success offset zero without range header", func(t *testing.T) {
		httpmock.RegisterResponder("GET", objectURLForTest, func(r *http.Request) (*http.Response, error) {
			assert.Empty(t, r.Header.Get("Range"))
			return httpmock.NewStringResponse(http.StatusOK, "payload"), nil
		})

		source, err := opener.OpenAt(objectURLForTest, 0)

		require.NoError(t, err)
		source.Close()
	})
}

// dyingBody serves its payload and then fails with the configured error
// instead of a clean end of stream.
type dyingBody struct {
	reader io.Reader
	err    error
}

func (b *dyingBody) Read(p []byte) (int, error) {
	n, err := b.reader.Read(p)
	if err == io.EOF {
		return n, b.err
	}
	return n, err
}

func (b *dyingBody) Close() error { return nil }

func TestHTTPOpener_ResumeThroughReader(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	httpmock.RegisterResponder("GET", objectURLForTest, func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Range") == "" {
			// the first fetch dies after 40 bytes with a connection reset
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       &dyingBody{reader: bytes.NewReader(data[:40]), err: connResetError()},
				Header:     http.Header{},
				Request:    r,
			}, nil
		}

		assert.Equal(t, "bytes=40-", r.Header.Get("Range"))
		return &http.Response{
			StatusCode: http.StatusPartialContent,
			Body:       io.NopCloser(bytes.NewReader(data[40:])),
			Header:     http.Header{},
			Request:    r,
		}, nil
	})

	opener := NewHTTPOpener(&HTTPOpenerOptions{HTTPClient: http.DefaultClient})
	reader, err := NewReader(objectURLForTest, opener, &ReaderOptions{
		Backoff: NewBackoff(&backoff.ZeroBackOff{})})
	require.NoError(t, err)
	defer reader.Close()

	read, err := io.ReadAll(reader)

	require.NoError(t, err)
	assert.Equal(t, data, read)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}
