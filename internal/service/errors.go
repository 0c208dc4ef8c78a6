package service

import "errors"

// Taxonomia de errores operacionales del core de autenticacion.
var (
	ErrUnauthenticated       = errors.New("no credential")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenRevoked          = errors.New("token revoked")
	ErrUserNotFound          = errors.New("user not found")
	ErrAccountNotActive      = errors.New("account not active")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailExists           = errors.New("email already registered")
	ErrUsernameExists        = errors.New("username already taken")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrRateLimited           = errors.New("rate limited")
	ErrEmailSendFailure      = errors.New("email send failed")
	ErrServiceUnavailable    = errors.New("service unavailable")
)

// AccountStatusError transporta el status concreto junto al sentinel.
type AccountStatusError struct {
	Status string
}

func (e *AccountStatusError) Error() string {
	return "account is " + e.Status
}

func (e *AccountStatusError) Is(target error) bool {
	return target == ErrAccountNotActive
}
