package source

import "fmt"

// PackNotFound is returned when no source can produce the pack.
type PackNotFound struct {
	ID string
}

func (e *PackNotFound) Error() string {
	return fmt.Sprintf("pack not found: %s", e.ID)
}

// NetworkError wraps a transient transport failure. Retried with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is returned when a forge rejects the configured credentials.
type AuthError struct {
	Provider Provider
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimited is returned when the forge bucket is exhausted beyond the
// bounded wait.
type RateLimited struct {
	Provider  Provider
	ResetSecs int
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited by %s, reset in %ds", e.Provider, e.ResetSecs)
}

// IntegrityMismatch is returned when downloaded content does not match its
// declared hash.
type IntegrityMismatch struct {
	ID   string
	Want string
	Got  string
}

func (e *IntegrityMismatch) Error() string {
	return fmt.Sprintf("integrity mismatch for %s: want %s, got %s", e.ID, e.Want, e.Got)
}
