package model

import (
	"errors"
	"fmt"
)

var (
	// Signup conflicts
	ErrUsernameTaken = errors.New("username already registered")
	ErrEmailTaken    = errors.New("email already registered")

	// Authentication failures, deliberately coarse
	ErrInvalidCredentials  = errors.New("incorrect username or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthorized        = errors.New("could not validate credentials")

	ErrUserNotFound = errors.New("user not found")

	// Store-level uniqueness violation
	ErrDuplicateKey = errors.New("duplicate key")

	ErrInvalidInput = errors.New("invalid input")
)

// DuplicateKeyError is returned by a credential store when its own uniqueness
// constraint rejects an insert. Field names the violated column.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key on %s", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}
