// Package errs defines the error taxonomy used at the node's core
// boundary (HTTP handlers, background loops) so recoverable failures
// can be classified and converted into the right response or log level.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies which bucket of the taxonomy an error belongs to.
type Kind string

const (
	KindIO               Kind = "io"
	KindStore            Kind = "store"
	KindStoreUnreachable Kind = "store_unreachable"
	KindNetwork          Kind = "network"
	KindProtocol         Kind = "protocol"
	KindValidation       Kind = "validation"
	KindConfig           Kind = "config"
	KindInternal         Kind = "internal"
)

// Error is a typed, wrapped error carrying one of the Kind values above.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

func IOError(msg string, err error) error               { return newErr(KindIO, msg, err) }
func StoreError(msg string, err error) error             { return newErr(KindStore, msg, err) }
func StoreUnreachable(msg string, err error) error       { return newErr(KindStoreUnreachable, msg, err) }
func NetworkError(msg string, err error) error           { return newErr(KindNetwork, msg, err) }
func ProtocolError(msg string, err error) error          { return newErr(KindProtocol, msg, err) }
func ValidationError(msg string) error                   { return newErr(KindValidation, msg, nil) }
func ValidationErrorWrap(msg string, err error) error    { return newErr(KindValidation, msg, err) }
func ConfigError(msg string, err error) error            { return newErr(KindConfig, msg, err) }
func Internal(msg string, err error) error               { return newErr(KindInternal, msg, err) }

// Wrap adds context to an error message. It returns nil if err is nil.
// Grounded on the teacher's pkg/utils.Wrap.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
