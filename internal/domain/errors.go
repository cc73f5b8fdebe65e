package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the deskbridge domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Run() is called on a running engine.
	ErrAlreadyRunning = errors.New("deskbridge: migration already running")

	// ErrMissingFile is returned when a configuration document does not exist.
	ErrMissingFile = errors.New("deskbridge: config file not found")

	// ErrMissingKey is returned when a required configuration key is absent
	// after merging documents, environment and flags.
	ErrMissingKey = errors.New("deskbridge: required config key missing")

	// ErrParse is returned when a configuration document or state file cannot
	// be decoded.
	ErrParse = errors.New("deskbridge: parse failure")

	// ErrUnauthorized is returned when the remote service rejects the
	// configured credentials. Never retried.
	ErrUnauthorized = errors.New("deskbridge: credentials rejected")

	// ErrSessionExpired is returned when the remote service invalidates a
	// previously issued session token mid-run. The client re-opens the
	// session once and retries the failed call once.
	ErrSessionExpired = errors.New("deskbridge: session expired")

	// ErrSessionOpen is returned when OpenSession is called on a client that
	// already holds a live session.
	ErrSessionOpen = errors.New("deskbridge: session already open")

	// ErrNoSession is returned when an authenticated call is made before
	// OpenSession or after CloseSession.
	ErrNoSession = errors.New("deskbridge: no open session")

	// ErrCursorRegression is returned when a checkpoint save would move the
	// cursor backwards within a single process.
	ErrCursorRegression = errors.New("deskbridge: checkpoint cursor regression")
)

// RecordError describes a failure confined to a single record. The engine
// skips the record, counts it, and continues the batch; it never aborts the
// run for a RecordError.
type RecordError struct {
	// Key is the source record key (e.g. "SUP-1432").
	Key string

	// Stage is the phase that failed: "transform" or "apply".
	Stage string

	// Err is the underlying cause.
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %s failed: %v", e.Key, e.Stage, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
