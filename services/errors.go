package services

import "errors"

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrMissingParticipant = errors.New("participant is required")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrDuplicateRoom      = errors.New("room already exists")
	ErrRoomNotFound       = errors.New("room not found")
	ErrEmptyContent       = errors.New("message content is empty")
	ErrNotParticipant     = errors.New("user is not a participant of this room")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
