package auth

import "errors"

var (
	ErrInvalidCredential = errors.New("invalid credential")
)
