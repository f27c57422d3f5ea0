package resolver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPDereferencer is the production Dereferencer: one HEAD request, no
// redirect following, bounded by the configured timeout.
type HTTPDereferencer struct {
	client *http.Client
}

var _ Dereferencer = (*HTTPDereferencer)(nil)

// NewHTTPDereferencer creates an HTTPDereferencer with the given timeout.
func NewHTTPDereferencer(timeout time.Duration) *HTTPDereferencer {
	return &HTTPDereferencer{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// The Location header is the payload here; following the
			// redirect would discard it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// NewHTTPDereferencerWithClient wraps an existing client. Used by tests to
// inject a recorded transport.
func NewHTTPDereferencerWithClient(client *http.Client) *HTTPDereferencer {
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPDereferencer{client: client}
}

// Head implements Dereferencer.
func (d *HTTPDereferencer) Head(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("build dereference request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dereference %s: %w", url, err)
	}
	defer resp.Body.Close()

	return resp.Header.Get("Location"), nil
}
