// Package upstream holds the response and error types shared by the outbound
// HTTP clients.
package upstream

import (
	"fmt"
	"io"
	"net/http"

	"vcissuer/pkg/platform/sentinel"
)

// maxBody bounds how much of an upstream response is read.
const maxBody = 4 << 20

// Response is a fully read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the response content type.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Error is a non-success upstream response. Handlers relay Status and Body
// to the caller verbatim.
type Error struct {
	Service     string
	Status      int
	Body        []byte
	ContentType string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.Status, truncate(e.Body, 256))
}

// Unwrap reports server-side failures as transient.
func (e *Error) Unwrap() error {
	if e.Status >= http.StatusInternalServerError {
		return sentinel.ErrUnavailable
	}
	return nil
}

// AsError converts a response into an *Error for service.
func (r *Response) AsError(service string) *Error {
	return &Error{
		Service:     service,
		Status:      r.Status,
		Body:        r.Body,
		ContentType: r.ContentType(),
	}
}

// Do sends req and reads the whole body. Transport failures wrap
// sentinel.ErrUnavailable.
func Do(client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Redacted(), sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w: %w", req.URL.Redacted(), sentinel.ErrUnavailable, err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
