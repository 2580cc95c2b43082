package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the failure classes a scrape pass can surface
type ErrorType string

const (
	ErrorTypeTransport          ErrorType = "transport"
	ErrorTypeDecode             ErrorType = "decode"
	ErrorTypeSigningUnavailable ErrorType = "signing_unavailable"
	ErrorTypeLedger             ErrorType = "ledger"
	ErrorTypeUnsupportedMedia   ErrorType = "unsupported_media"
)

// Error is a typed failure. Code carries the HTTP status for transport errors
// (0 for network failures).
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(" error")
	if e.Type == ErrorTypeTransport {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransport builds a transport error for a final HTTP failure
func NewTransport(code int, message string, err error) *Error {
	return &Error{Type: ErrorTypeTransport, Code: code, Message: message, Err: err}
}

// NewDecode builds a decode error
func NewDecode(message string, err error) *Error {
	return &Error{Type: ErrorTypeDecode, Message: message, Err: err}
}

// NewLedger builds a ledger error
func NewLedger(message string, err error) *Error {
	return &Error{Type: ErrorTypeLedger, Message: message, Err: err}
}

// NewUnsupportedMedia builds an error for a media kind that cannot be stored
func NewUnsupportedMedia(message string) *Error {
	return &Error{Type: ErrorTypeUnsupportedMedia, Message: message}
}

// ErrSigningUnavailable is returned by a signer that has no rules loaded.
var ErrSigningUnavailable = &Error{
	Type:    ErrorTypeSigningUnavailable,
	Message: "no header rules loaded",
}

// IsType reports whether err wraps an *Error of the given type
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

func IsTransport(err error) bool          { return IsType(err, ErrorTypeTransport) }
func IsDecode(err error) bool             { return IsType(err, ErrorTypeDecode) }
func IsSigningUnavailable(err error) bool { return IsType(err, ErrorTypeSigningUnavailable) }
func IsLedger(err error) bool             { return IsType(err, ErrorTypeLedger) }
func IsUnsupportedMedia(err error) bool   { return IsType(err, ErrorTypeUnsupportedMedia) }

// StatusCode returns the HTTP status carried by a transport error, or -1
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Type == ErrorTypeTransport {
		return e.Code
	}
	return -1
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	return errorType == ErrorTypeTransport
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ScrapeError attaches where a failure happened during a pass.
type ScrapeError struct {
	Account    string
	Collection string
	UserID     int64
	Cursor     int
	Err        error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s/%s user=%d cursor=%d: %v",
		e.Account, e.Collection, e.UserID, e.Cursor, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Wrap returns a ScrapeError around err, or nil when err is nil.
func Wrap(err error, account, collection string, userID int64, cursor int) error {
	if err == nil {
		return nil
	}
	return &ScrapeError{
		Account:    account,
		Collection: collection,
		UserID:     userID,
		Cursor:     cursor,
		Err:        err,
	}
}
