// Package apperr defines the error taxonomy shared by every layer above the
// storage engine. Handlers in internal/keyspace return these values instead
// of raw database/sql errors; internal/dispatch translates them to RESP wire
// errors and never needs to know about SQL.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire-protocol translation and logging.
type Kind int

const (
	// KindNotFound is not actually surfaced as a wire error: callers check
	// for it with errors.Is and translate to a null/zero reply themselves.
	KindNotFound Kind = iota
	KindWrongType
	KindNotInteger
	KindNotFloat
	KindSyntaxError
	KindOutOfRange
	KindInvalidCursor
	KindBusyGroup
	KindNoGroup
	KindAuthRequired
	KindStorageError
	KindIoError
)

// Error is the concrete error type produced by internal/keyspace and
// internal/session. It always carries a Kind so the dispatcher can pick the
// right RESP error prefix without string-sniffing.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // underlying cause, if any (e.g. a *sqlite3.Error)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// WireMessage returns the RESP error prefix and text for this error, per the
// taxonomy in spec.md §7.
func (e *Error) WireMessage() (prefix, text string) {
	switch e.Kind {
	case KindWrongType:
		return "WRONGTYPE", "Operation against a key holding the wrong kind of value"
	case KindNotInteger:
		return "ERR", "value is not an integer or out of range"
	case KindNotFloat:
		return "ERR", "value is not a valid float"
	case KindSyntaxError:
		return "ERR", "syntax error"
	case KindOutOfRange:
		return "ERR", e.Msg
	case KindInvalidCursor:
		return "ERR", "invalid cursor"
	case KindBusyGroup:
		return "BUSYGROUP", "Consumer Group name already exists"
	case KindNoGroup:
		return "NOGROUP", e.Msg
	case KindAuthRequired:
		return "NOAUTH", "Authentication required."
	case KindStorageError:
		return "ERR", "internal: " + e.Msg
	case KindIoError:
		return "ERR", "io error: " + e.Msg
	default:
		return "ERR", e.Msg
	}
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

// Sentinel for NotFound, checked with errors.Is — not a wire error itself.
var ErrNotFound = errors.New("redlite: key not found")

func WrongType() *Error      { return New(KindWrongType, "wrongtype") }
func NotInteger() *Error     { return New(KindNotInteger, "not an integer") }
func NotFloat() *Error       { return New(KindNotFloat, "not a float") }
func Syntax() *Error         { return New(KindSyntaxError, "syntax error") }
func OutOfRange(msg string) *Error { return New(KindOutOfRange, msg) }
func InvalidCursor() *Error  { return New(KindInvalidCursor, "invalid cursor") }
func BusyGroup() *Error      { return New(KindBusyGroup, "group exists") }
func NoGroup(msg string) *Error { return New(KindNoGroup, msg) }
func AuthRequired() *Error   { return New(KindAuthRequired, "auth required") }
func Storage(err error) *Error { return Wrap(KindStorageError, err.Error(), err) }
func Io(err error) *Error    { return Wrap(KindIoError, err.Error(), err) }

// IsNotFound reports whether err is the NotFound sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
