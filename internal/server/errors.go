package server

import "errors"

var (
	// ErrInvalidRoom is returned by join/leave when the room id is missing.
	ErrInvalidRoom = errors.New("room id is required")
	// ErrConnectionRejected is returned when a transport registers without
	// a resolvable user identity.
	ErrConnectionRejected = errors.New("connection rejected: missing user identity")
	// ErrMalformedPayload is returned when an event payload cannot be
	// decoded to its structured form.
	ErrMalformedPayload = errors.New("malformed payload")
)
