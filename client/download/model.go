package download

import (
	"errors"
	"fmt"
)

var (
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrTooLarge              = errors.New("body exceeds size limit")
	ErrDownloadCancelled     = errors.New("download cancelled")
)

// Error pairs a download sentinel with detail about the failure.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
