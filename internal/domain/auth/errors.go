package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrMFAUnavailable     = errors.New("mfa requires an encryption key")
	ErrMFANotSetUp        = errors.New("mfa setup required")
)
