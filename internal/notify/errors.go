package notify

import "errors"

var (
	// ErrUnexpectedStatus signals a non-2xx answer from a webhook endpoint.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	errPanicked         = errors.New("sink panicked")
)
