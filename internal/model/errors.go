package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrUnauthorized is returned when the server rejects the current credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransient is returned when a server call failed and may work if retried later.
	ErrTransient = errors.New("transient network error")
	// ErrCommandInFlight is returned when a session command is requested while another one is running.
	ErrCommandInFlight = errors.New("session command already in flight")
	// ErrLoggedOut is returned when an operation needs credentials and there are none.
	ErrLoggedOut = errors.New("logged out")
)
