package octopus

import (
	"errors"
	"fmt"
)

// Common errors returned by the Octopus client.
var (
	// ErrSourceUnavailable indicates the Octopus API could not be reached or
	// answered with a non-2xx status.
	ErrSourceUnavailable = errors.New("octopus API unavailable")

	// ErrNotFound indicates the publication or user was not found.
	ErrNotFound = errors.New("not found in Octopus")

	// ErrInvalidResponse indicates a body that is not JSON at all.
	ErrInvalidResponse = errors.New("invalid response from Octopus")
)

// APIError represents a non-2xx response from the Octopus API.
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("octopus API error (status %d): %s", e.StatusCode, e.Path)
}

// Unwrap lets errors.Is match ErrSourceUnavailable (and ErrNotFound for 404s).
func (e *APIError) Unwrap() []error {
	if e.StatusCode == 404 {
		return []error{ErrSourceUnavailable, ErrNotFound}
	}
	return []error{ErrSourceUnavailable}
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
