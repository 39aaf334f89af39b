package domain

import "errors"

var (
	// ErrInvalidRegistration is returned when a registration has an empty name
	// or references a team that does not exist in the session.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrUserNotFound means no durable record exists for the user yet; callers
	// treat this as first-time (zero) state, not a failure.
	ErrUserNotFound = errors.New("user record not found")
	// ErrStudentNotFound means no registration exists for a session/user pair.
	ErrStudentNotFound = errors.New("registered student not found")
	// ErrTeamNotFound indicates a team id that is not part of the session.
	ErrTeamNotFound = errors.New("team not found")
	// ErrCatalogNotFound indicates the content catalog could not be loaded.
	ErrCatalogNotFound = errors.New("catalog not found")
)
