// Package apperror defines the failure categories callers can observe.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced task, message, comment or attachment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the actor does not own the resource it tried to change.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidShape indicates a message was addressed to neither or both of a channel and a recipient.
	ErrInvalidShape = errors.New("message must target exactly one of channel or recipient")

	// ErrInvalidInput indicates a request field failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a concurrent write won the race for the same record.
	ErrConflict = errors.New("concurrent modification")
)

// Code identifies an error category on the wire.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeInvalidShape Code = "invalid_shape"
	CodeInvalidInput Code = "invalid_input"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"
)

// Reply carries a failure across a request-reply hop. Service handlers
// return it inside a successful response so the category is not lost when
// the framework flattens errors to strings.
type Reply struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToReply converts err into a Reply, or nil when err is nil.
func ToReply(err error) *Reply {
	if err == nil {
		return nil
	}
	return &Reply{Code: CodeOf(err), Message: err.Error()}
}

// Err turns the reply back into an error wrapping the matching sentinel.
func (r *Reply) Err() error {
	if r == nil {
		return nil
	}
	sentinel := sentinelFor(r.Code)
	if sentinel == nil {
		return errors.New(r.Message)
	}
	if r.Message == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, r.Message)
}

// CodeOf reports the category of err.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidShape):
		return CodeInvalidShape
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

func sentinelFor(code Code) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeInvalidShape:
		return ErrInvalidShape
	case CodeInvalidInput:
		return ErrInvalidInput
	case CodeConflict:
		return ErrConflict
	default:
		return nil
	}
}
