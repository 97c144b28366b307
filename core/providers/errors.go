// Package providers holds what the speech, language and avatar adapters share:
// a common error type that tells the pipeline whether a failed call is worth
// retrying, and an instrumented HTTP client.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is returned by provider adapters when the remote service could not
// serve a request.
type Error struct {
	Provider string
	// StatusCode is the HTTP (or websocket handshake) status, 0 when the
	// request never got an answer.
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether repeating the same request may succeed.
func (e *Error) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooEarly,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsTransient classifies err for the retry policy. Timeouts, transport
// failures and throttling are transient, explicit rejections by the provider
// are not. Errors marked Permanent are never transient, whatever they wrap.
// Errors of unknown origin are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Transient()
	}

	return true
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// FromResponse builds an Error out of a non-successful response, keeping a
// bounded part of the body as the message.
func FromResponse(provider string, resp *http.Response) *Error {
	const maxBody = 1 << 10

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &Error{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// Transport wraps an error that happened before the provider answered.
func Transport(provider string, err error) *Error {
	return &Error{Provider: provider, Err: err}
}
