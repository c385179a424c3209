package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected signals that no token record exists for the company.
	ErrNotConnected = errors.New("quickscope: company not connected")
	// ErrProspectNotFound signals a missing prospect record.
	ErrProspectNotFound = errors.New("quickscope: prospect not found")
	// ErrSnapshotNotFound signals that no financial snapshot has been synced.
	ErrSnapshotNotFound = errors.New("quickscope: financial snapshot not found")
	// ErrInvalidState indicates the OAuth state parameter is unknown or expired.
	ErrInvalidState = errors.New("quickscope: invalid oauth state")
	// ErrMissingOAuthParams indicates the callback lacked code or realm id.
	ErrMissingOAuthParams = errors.New("quickscope: missing oauth params")
)

// ExchangeError reports a rejected authorization-code exchange. The caller
// surfaces a generic "connection failed" page; the flow is never retried
// automatically.
type ExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status=%d body=%s", e.Status, e.Body)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError reports a rejected or failed refresh grant. The stale token
// record stays in place for diagnostics; the user must reconnect.
type RefreshError struct {
	CompanyID string
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for company %s: %v", e.CompanyID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// StoreError wraps any persistence failure during upsert/delete.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidationError carries a field-level message for a 400 response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
