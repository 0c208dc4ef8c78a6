package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"oba-connect/internal/service"
)

// Codigos estables del contrato de error con el frontend.
const (
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenRevoked          = "TOKEN_REVOKED"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeAccountNotActive      = "ACCOUNT_NOT_ACTIVE"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeEmailExists           = "EMAIL_EXISTS"
	CodeUsernameExists        = "USERNAME_EXISTS"
	CodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	CodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	CodeEmailDelivery         = "EMAIL_DELIVERY_UNAVAILABLE"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	CodeValidation            = "VALIDATION_ERROR"
)

// fail escribe el envelope de error estandar.
func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg, "code": code})
}

// failErr mapea un error del core a status + codigo estables.
func failErr(c *gin.Context, err error) {
	var statusErr *service.AccountStatusError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
	case errors.Is(err, service.ErrTokenExpired):
		fail(c, http.StatusUnauthorized, CodeTokenExpired, "token expired")
	case errors.Is(err, service.ErrTokenMalformed):
		fail(c, http.StatusUnauthorized, CodeInvalidToken, "invalid token")
	case errors.Is(err, service.ErrTokenRevoked):
		fail(c, http.StatusUnauthorized, CodeTokenRevoked, "token revoked")
	case errors.Is(err, service.ErrUserNotFound):
		fail(c, http.StatusUnauthorized, CodeUserNotFound, "user not found")
	case errors.As(err, &statusErr):
		fail(c, http.StatusForbidden, CodeAccountNotActive, "account is "+statusErr.Status)
	case errors.Is(err, service.ErrAccountNotActive):
		fail(c, http.StatusForbidden, CodeAccountNotActive, "account not active")
	case errors.Is(err, service.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials")
	case errors.Is(err, service.ErrEmailExists):
		fail(c, http.StatusBadRequest, CodeEmailExists, "email already registered")
	case errors.Is(err, service.ErrUsernameExists):
		fail(c, http.StatusBadRequest, CodeUsernameExists, "username already taken")
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		fail(c, http.StatusBadRequest, CodeInvalidOrExpiredToken, "invalid or expired token")
	case errors.Is(err, service.ErrRateLimited):
		fail(c, http.StatusTooManyRequests, CodeRateLimitExceeded, "too many requests")
	case errors.Is(err, service.ErrEmailSendFailure):
		fail(c, http.StatusServiceUnavailable, CodeEmailDelivery, "email delivery unavailable")
	case errors.Is(err, service.ErrServiceUnavailable):
		fail(c, http.StatusServiceUnavailable, CodeServiceUnavailable, "service unavailable")
	default:
		fail(c, http.StatusInternalServerError, CodeServiceUnavailable, "internal error")
	}
}
