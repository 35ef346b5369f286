package user

import "errors"

var (
	ErrNotFound      = errors.New("user: not found")
	ErrEmailTaken    = errors.New("user: email already registered")
	ErrWrongPassword = errors.New("user: incorrect password")
	ErrValidation    = errors.New("user: invalid input")
)
