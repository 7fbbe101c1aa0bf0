package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated is returned when a request is attempted without a
// session token.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// RequestFailed is returned by every gateway operation that did not get a
// successful response, whether the request never reached the server or the
// server rejected it.
type RequestFailed struct {
	// Op names the gateway operation, e.g. "mark read".
	Op string

	// Status is the HTTP status code, or 0 for transport errors.
	Status int

	// Message is the server-provided message, if any.
	Message string

	Err error
}

func (e *RequestFailed) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s failed (%d)", e.Op, e.Status)
	}
}

func (e *RequestFailed) Unwrap() error {
	return e.Err
}

// IsRequestFailed reports whether err (or any error in its chain) is a
// RequestFailed.
func IsRequestFailed(err error) bool {
	var rf *RequestFailed
	return errors.As(err, &rf)
}

// IsUnauthorized reports whether err is a RequestFailed caused by a missing,
// expired or rejected session token.
func IsUnauthorized(err error) bool {
	var rf *RequestFailed
	if !errors.As(err, &rf) {
		return false
	}
	return rf.Status == http.StatusUnauthorized ||
		rf.Status == http.StatusForbidden ||
		errors.Is(rf.Err, ErrNotAuthenticated)
}
