package client

import "errors"

var (
	ErrUnavailable    = errors.New("server unavailable")
	ErrBadRequest     = errors.New("bad request")
	ErrStaleTimestamp = errors.New("request timestamp rejected")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("not acceptable")
	ErrServer         = errors.New("server error")
)

// StatusError is a non-200 reply. It unwraps to one of the sentinels above.
type StatusError struct {
	Code int
	Body string
	kind error
}

func (e *StatusError) Error() string {
	return e.kind.Error() + ": " + e.Body
}

func (e *StatusError) Unwrap() error {
	return e.kind
}
