// Package httpclient builds the HTTP clients used by the remote adapters.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent is sent with every outgoing request.
const UserAgent = "smartcharge/1.0"

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// never mutate the caller's request
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// New returns a client with the default user agent and timeout.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{transport: http.DefaultTransport, userAgent: UserAgent},
		Timeout:   timeout,
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Status, e.Body)
}

// CheckStatus turns a non-2xx response into a StatusError carrying the start
// of the body.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &StatusError{URL: resp.Request.URL.Redacted(), Status: resp.StatusCode, Body: string(b)}
}
