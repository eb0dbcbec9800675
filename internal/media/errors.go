package media

import "errors"

var (
	// ErrNotFound is returned for unknown or already expired blob ids.
	ErrNotFound = errors.New("media: blob not found")

	// ErrTooLarge marks a download or aggregate that exceeds a configured
	// byte limit.
	ErrTooLarge = errors.New("media: size limit exceeded")

	// ErrFetchFailed marks an upstream download that could not complete.
	ErrFetchFailed = errors.New("media: fetch failed")
)
