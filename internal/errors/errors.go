// Package errors provides error types and handling for the script monitor.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// HTTPStatus represents a non-success HTTP response.
	HTTPStatus
	// Decode represents byte-decoding failures (charset, compression).
	Decode
	// Reformat represents source reformatting failures.
	Reformat
	// Parse represents script parsing errors.
	Parse
	// Store represents persisted-state read/write failures.
	Store
	// Config represents invalid user-supplied configuration.
	Config
	// Loader represents browser/page-loading errors.
	Loader
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case HTTPStatus:
		return "http_status"
	case Decode:
		return "decode"
	case Reformat:
		return "reformat"
	case Parse:
		return "parse"
	case Store:
		return "store"
	case Config:
		return "config"
	case Loader:
		return "loader"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFatalForTarget reports whether errors of this type should abort the
// current target. Everything else aborts at most the current asset.
func (t ErrorType) IsFatalForTarget() bool {
	return t == Loader || t == Cancelled
}

// MonitorError represents a categorized monitoring error.
type MonitorError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *MonitorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *MonitorError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *MonitorError) Is(target error) bool {
	t, ok := target.(*MonitorError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new MonitorError.
func New(errType ErrorType, url, operation, message string, cause error) *MonitorError {
	return &MonitorError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *MonitorError {
	return New(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *MonitorError {
	return New(Timeout, url, operation, "request timed out", cause)
}

// NewHTTPStatusError creates an error for a non-success HTTP response.
func NewHTTPStatusError(url string, statusCode int) *MonitorError {
	err := New(HTTPStatus, url, "fetch", fmt.Sprintf("server returned %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewDecodeError creates a decode error.
func NewDecodeError(url, operation string, cause error) *MonitorError {
	return New(Decode, url, operation, "decoding failed", cause)
}

// NewReformatError creates a reformat error.
func NewReformatError(url string, cause error) *MonitorError {
	return New(Reformat, url, "reformat", "source reformatting failed", cause)
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *MonitorError {
	return New(Parse, url, operation, "parsing failed", cause)
}

// NewStoreError creates a persisted-state error.
func NewStoreError(url, operation string, cause error) *MonitorError {
	return New(Store, url, operation, "state persistence failed", cause)
}

// NewConfigError creates a configuration error.
func NewConfigError(operation, message string) *MonitorError {
	return New(Config, "", operation, message, nil)
}

// NewLoaderError creates a page-loader error.
func NewLoaderError(url, operation string, cause error) *MonitorError {
	return New(Loader, url, operation, "page load failed", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *MonitorError {
	return New(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *MonitorError {
	if err == nil {
		return nil
	}

	// Already a MonitorError
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr
	}

	if strings.Contains(err.Error(), "context canceled") {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return New(Unknown, url, "request", err.Error(), err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr.Type
	}
	return Unknown
}
