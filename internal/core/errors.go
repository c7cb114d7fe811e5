package core

import (
	"errors"

	"gwi.com/streak-chat/internal/store"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = store.ErrNotFound
	ErrConflict           = store.ErrDuplicate
	ErrInsufficientPoints = store.ErrInsufficientPoints
)

// UpstreamError is a failure of the completion service: a transport or API
// error, or a response without usable text.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return "completion service " + e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
