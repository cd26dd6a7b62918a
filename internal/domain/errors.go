package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential marks an adapter that has no credentials configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrAlreadyMerged is returned when a series already contains a realtime-merged row.
	ErrAlreadyMerged = errors.New("series already contains a merged realtime row")
	// ErrProjectNotFound is returned by settings providers for unknown projects.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidDateRange is returned when a range ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range")
)

// CredentialError is a configuration error of one platform adapter.
type CredentialError struct {
	Platform Platform
	Field    string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s: %s not configured", e.Platform, e.Field)
}

func (e *CredentialError) Unwrap() error {
	return ErrMissingCredential
}

// APIError is a transport or format failure reported by a platform.
type APIError struct {
	Platform Platform
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error (status %d, code %s): %s", e.Platform, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Platform, e.Status, e.Message)
}

// IsDisabled reports whether err means the adapter is simply not configured.
func IsDisabled(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}
