package errs

import (
	"errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidSecret   = errors.New("invalid token secret")
)
