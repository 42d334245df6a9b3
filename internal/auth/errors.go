package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrAccountInactive    = errors.New("auth: account inactive")
	ErrWeakPassword       = errors.New("auth: password does not meet policy")
)
