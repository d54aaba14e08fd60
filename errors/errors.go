package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Live-layer failures.
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrAlreadyRegistered = fmt.Errorf("connection already registered")

	// Per-action rejections. None of these mutate state.
	ErrRoomNotFound    = fmt.Errorf("room not found")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrNotAMember      = fmt.Errorf("not a member of this room")
	ErrAlreadyMember   = fmt.Errorf("already a member of this room")
	ErrInvalidContent  = fmt.Errorf("invalid message content")
	ErrNotRoomCreator  = fmt.Errorf("only the room creator can delete the room")
	ErrRateLimited     = fmt.Errorf("too many messages, slow down")

	// Identity failures.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")

	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrEmptyWords   = fmt.Errorf("no censored words have been found")
	ErrSlowConsumer = fmt.Errorf("subscriber send buffer full")
)

// HTTPStatus maps a service error to the status code the REST surface
// returns. Unknown errors are treated as persistence or infrastructure
// failures and become 500s.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotRoomCreator):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrInvalidContent),
		errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrUserAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable identifier sent to websocket clients in
// error frames, so they can distinguish "join first" from "no such room".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrInvalidContent):
		return "invalid_content"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}
