package domain

import (
	"fmt"
	"strings"
)

// ErrorKind classifies every failure the engine reports.
type ErrorKind string

const (
	KindHandshake   ErrorKind = "handshake_failure"
	KindProtocol    ErrorKind = "protocol_error"
	KindTransaction ErrorKind = "transaction_failure"
	KindValidation  ErrorKind = "validation_error"
	KindMisuse      ErrorKind = "misuse_error"
	KindCancelled   ErrorKind = "cancelled"
)

// Error is the single error type surfaced through futures and observers.
type Error struct {
	Kind    ErrorKind
	Message string
	// Fields lists the instrument fields that failed validation.
	Fields []string
	// Result carries the declined transfer for TransactionFailure, if any.
	Result *TransferResult
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrMisuse) works for
// any misuse error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrHandshake   = &Error{Kind: KindHandshake}
	ErrProtocol    = &Error{Kind: KindProtocol}
	ErrTransaction = &Error{Kind: KindTransaction}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrMisuse      = &Error{Kind: KindMisuse}
	ErrCancelled   = &Error{Kind: KindCancelled}
)

func HandshakeError(msg string, err error) *Error {
	return &Error{Kind: KindHandshake, Message: msg, Err: err}
}

func ProtocolError(msg string, err error) *Error {
	return &Error{Kind: KindProtocol, Message: msg, Err: err}
}

func MisuseError(msg string) *Error {
	return &Error{Kind: KindMisuse, Message: msg}
}

func ValidationError(fields []string) *Error {
	return &Error{Kind: KindValidation, Message: "instrument failed validation", Fields: fields}
}

func TransactionError(msg string, res *TransferResult) *Error {
	return &Error{Kind: KindTransaction, Message: msg, Result: res}
}
