package service

import (
	"errors"
	"fmt"
)

// Sentinels returned by StarService. Match with errors.Is.
var (
	// ErrNotFound means no star has the requested id.
	ErrNotFound = errors.New("star not found")
	// ErrNoDataAvailable means a derived query ran against an empty store.
	ErrNoDataAvailable = errors.New("no data available")
)

// Error carries a service sentinel together with the message shown to
// clients, e.g. "Star with id 7 not found".
type Error struct {
	Sentinel error
	Message  string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool { return errors.Is(e.Sentinel, target) }

func (e *Error) Unwrap() error { return e.Sentinel }

func notFound(id int64) error {
	return &Error{Sentinel: ErrNotFound, Message: fmt.Sprintf("Star with id %d not found", id)}
}

func noData() error {
	return &Error{Sentinel: ErrNoDataAvailable, Message: "List of stars is null or empty"}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNoDataAvailable reports whether err is, or wraps, ErrNoDataAvailable.
func IsNoDataAvailable(err error) bool { return errors.Is(err, ErrNoDataAvailable) }
