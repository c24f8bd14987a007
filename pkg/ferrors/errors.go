// Package ferrors holds fleetwatch's tagged error taxonomy (spec §7):
// Config, Auth, Transient, Data, and Persistence. The monitor service's
// tick boundary does not distinguish between these types: any error
// inside a tick is reported through its warning callback and the rest
// of that tick is skipped. Only the provider's retry loop inspects a
// type (TransientError).
package ferrors

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError marks a fatal initialization failure: process must abort.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s", e.Msg) }
func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError marks a 401 or token-refresh failure. Human-actionable by
// design (spec §4.4): never retried automatically.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %s", e.Msg) }
func (e *AuthError) Unwrap() error { return e.Err }

// TransientError marks a retryable failure: 429/5xx, connection resets,
// timeouts. RetryAfter, if nonzero, is the server-requested backoff
// (e.g. from a Retry-After header).
type TransientError struct {
	Msg        string
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %s", e.Msg) }
func (e *TransientError) Unwrap() error { return e.Err }

// DataError marks an unparsable provider response or an invalid hex24.
// pkg/provider returns it to the caller, failing the whole call; single
// malformed state rows are dropped there without producing an error.
type DataError struct {
	Msg string
	Err error
}

func (e *DataError) Error() string { return fmt.Sprintf("data: %s", e.Msg) }
func (e *DataError) Unwrap() error { return e.Err }

// PersistenceError marks a state-store write failure. It propagates to
// the tick boundary, which logs it and skips the rest of the tick, but
// never exits the process.
type PersistenceError struct {
	Msg string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence: %s", e.Msg) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// AsTransient reports whether err is (or wraps) a *TransientError.
func AsTransient(err error) (*TransientError, bool) {
	var te *TransientError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// AsAuth reports whether err is (or wraps) an *AuthError.
func AsAuth(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
