// Package apperr holds the failure taxonomy shared by the sequence engine,
// the device registry, the playback state machine and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a failure. Callers branch on the code, never on the message.
type Code string

const (
	CodeOutOfRange       Code = "out_of_range"
	CodeInvalidRange     Code = "invalid_range"
	CodeCapacityExceeded Code = "capacity_exceeded"
	CodeNotFound         Code = "not_found"
	CodeEmptyContext     Code = "empty_context"
	CodeConflict         Code = "conflict"
	CodeInvalid          Code = "invalid"
	CodeForbidden        Code = "forbidden"
)

// Sentinels for errors.Is. An *Error matches the sentinel carrying its code.
var (
	OutOfRange       = &Error{Code: CodeOutOfRange, Msg: "out of range"}
	InvalidRange     = &Error{Code: CodeInvalidRange, Msg: "invalid range"}
	CapacityExceeded = &Error{Code: CodeCapacityExceeded, Msg: "capacity exceeded"}
	NotFound         = &Error{Code: CodeNotFound, Msg: "not found"}
	EmptyContext     = &Error{Code: CodeEmptyContext, Msg: "context has no tracks"}
	Conflict         = &Error{Code: CodeConflict, Msg: "conflict, retry later"}
	Invalid          = &Error{Code: CodeInvalid, Msg: "invalid request"}
	Forbidden        = &Error{Code: CodeForbidden, Msg: "forbidden"}
)

type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
