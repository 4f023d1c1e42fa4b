package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures by the granularity at which they are surfaced
type ErrorType string

const (
	// ErrorTypeScrape aborts a whole scrape session
	ErrorTypeScrape ErrorType = "scrape"
	// ErrorTypeProxyFetch is isolated to a single gallery card
	ErrorTypeProxyFetch ErrorType = "proxy_fetch"
	// ErrorTypeDownload belongs to one single or batch download action
	ErrorTypeDownload ErrorType = "download"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeDecode   ErrorType = "decode"
	ErrorTypeInvalid  ErrorType = "invalid_request"
)

// Error represents a backend or pipeline error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: fmt.Sprintf("%s: %v", message, err), Err: err}
}

// Is reports whether any error in err's chain is an *Error of type t
func Is(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Type == t {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
