package core

import "errors"

// Failure taxonomy for the collaboration subsystem. Admission errors
// (ErrUnauthenticated, ErrForbidden) are fatal for the connection;
// ErrMalformedMessage and ErrRoleViolation drop the offending message
// and leave the connection open.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrMalformedMessage = errors.New("malformed message")
	ErrRoleViolation    = errors.New("role violation")
	ErrNotFound         = errors.New("not found")
)

// WebSocket close codes used by the room channel so that clients can
// distinguish fatal rejections (no retry) from transport drops.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
)
