package download

import (
	"errors"
)

// Option defines optional settings for downloading files.
//
// WithProgress enables periodic progress logging via the logger
// supplied to Handle.
//
// WithSkipExisting causes Handle to return nil immediately when
// the destination file already exists.
//
// WithMaxSize aborts the download once more than n bytes arrive.
type Option func(*options) error

type options struct {
	progress     bool
	skipExisting bool
	maxSize      int64
}

func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

func WithMaxSize(n int64) Option {
	return func(opts *options) error {
		if n <= 0 {
			return errors.New("max size must be greater than zero")
		}
		opts.maxSize = n
		return nil
	}
}
