package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport is the resource transport a unit downloads through: a metadata-only
// size probe and a range-qualified open.
type Transport interface {
	ProbeSize(ctx context.Context, url string) (int64, error)
	OpenRange(ctx context.Context, url string, offset int64) (io.ReadCloser, error)
}

// HTTPTransport implements Transport over plain HTTP(S).
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport with the given connect and read timeouts.
// Requests are instrumented with otelhttp.
func NewHTTPTransport(connectTimeout, readTimeout time.Duration) *HTTPTransport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	base.ResponseHeaderTimeout = readTimeout

	return &HTTPTransport{
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// ProbeSize issues a HEAD request and returns the reported content length.
// SizeUnknown is returned with a ProbeError when the server cannot answer.
func (t *HTTPTransport) ProbeSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return SizeUnknown, &ProbeError{URL: url, Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return SizeUnknown, &ProbeError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return SizeUnknown, &ProbeError{URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	if resp.ContentLength < 0 {
		return SizeUnknown, &ProbeError{URL: url, Err: fmt.Errorf("no content length")}
	}

	return resp.ContentLength, nil
}

// OpenRange opens the resource for reading, starting at offset when offset > 0.
// Any response status >= 400 is fatal.
func (t *HTTPTransport) OpenRange(ctx context.Context, url string, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransferError{URL: url, Err: err}
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransferError{URL: url, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()

		return nil, &TransferError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	return resp.Body, nil
}
