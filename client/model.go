package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/photosync/client/auth"
	"github.com/adamwoolhether/photosync/client/throttle"
)

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code. This prevents
// unbounded memory usage when a large response arrives with a
// wrong status.
const maxErrBodySize = 4 << 10 // 4KB

// execFn represents a func to operate on a response.
type execFn func(response *http.Response) error

var (
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")
	// ErrTransport wraps network failures: DNS, refused connections, timeouts.
	// They are never retried by the client.
	ErrTransport = errors.New("transport failure")
	// ErrCancelled wraps failures caused by the request's context ending,
	// whether during token acquisition, a throttle backoff, or the send.
	ErrCancelled = errors.New("request cancelled")
	// ErrCredential matches every [CredentialError].
	ErrCredential = auth.ErrCredential
	// ErrThrottled matches every [ThrottledError].
	ErrThrottled = throttle.ErrThrottled
)

type (
	// CredentialError reports a rejected token exchange. No request was sent.
	CredentialError = auth.CredentialError
	// ThrottledError reports that every allowed attempt was throttled.
	ThrottledError = throttle.ThrottledError
)

// UnexpectedStatusError is returned when the HTTP response status code
// does not match the expected value.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}
