package atproto

import (
	"errors"
	"fmt"
)

// Common errors returned by the AT Protocol client.
var (
	// ErrRemoteFailure indicates any failed call to a PDS or directory.
	ErrRemoteFailure = errors.New("AT Protocol request failed")

	// ErrAuthenticationFailed indicates the PDS rejected the handle/app password pair.
	ErrAuthenticationFailed = errors.New("AT Protocol authentication failed")

	// ErrServiceUnreachable indicates the PDS could not be contacted at all.
	ErrServiceUnreachable = errors.New("AT Protocol service unreachable")

	// ErrInvalidReference indicates a malformed at:// URI.
	ErrInvalidReference = errors.New("invalid AT URI")

	// ErrResolution indicates a handle or DID could not be resolved.
	ErrResolution = errors.New("identity resolution failed")
)

// XRPCError is an error response from an XRPC endpoint.
type XRPCError struct {
	StatusCode int
	Method     string
	Name       string // "error" field, e.g. "AuthenticationRequired"
	Message    string
}

func (e *XRPCError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: status %d %s: %s", e.Method, e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Method, e.StatusCode)
}

func (e *XRPCError) Unwrap() error {
	return ErrRemoteFailure
}

// IsAuthError returns true if the error is a rejected credential.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsUnreachable returns true if the error is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrServiceUnreachable)
}

// UserMessage renders an error as text suitable for showing to a researcher,
// distinguishing bad credentials from an unreachable service.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsAuthError(err):
		return "Invalid handle or app password. Check them and try again."
	case IsUnreachable(err):
		return "Could not reach your AT Protocol server. Try again later."
	default:
		return "The AT Protocol request failed. Try again later."
	}
}
