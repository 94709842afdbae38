package auth

import "errors"

var (
	// ErrUnauthenticated means no identity could be established for the
	// request (missing forward-auth headers).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the identity lacks the required permission.
	ErrForbidden = errors.New("forbidden")
)
