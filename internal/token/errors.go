package token

import "errors"

// Verification failure kinds. Callers outside the auth core collapse these into
// a single unauthorized error.
var (
	ErrMalformed        = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
	ErrWrongTokenType   = errors.New("token has the wrong type")
	ErrRevoked          = errors.New("token has been revoked")
)

// IsRejection reports whether err is one of the verification failure kinds, as
// opposed to an infrastructure failure such as an unreachable revocation store.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrWrongTokenType) ||
		errors.Is(err, ErrRevoked)
}
