package services

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrClientExists  = errors.New("client with this phone already exists")
	ErrOrderNotFound = errors.New("order not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrForbidden     = errors.New("forbidden")
)
