package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"oba-connect/internal/service"
)

const (
	authSessionKey = "auth_session"
	authClaimsKey  = "auth_claims"
	authTokenKey   = "auth_token"
)

// AuthRequired valida el bearer token y deja la sesion en el contexto.
// La cadena completa (firma, revocacion, resolucion, status) vive en
// AuthService.AuthenticateToken; aqui solo se extrae el header y se mapea.
func AuthRequired(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			failErr(c, service.ErrUnauthenticated)
			c.Abort()
			return
		}
		sess, claims, err := authSvc.AuthenticateToken(c.Request.Context(), raw)
		if err != nil {
			failErr(c, err)
			c.Abort()
			return
		}
		c.Set(authSessionKey, sess)
		c.Set(authClaimsKey, claims)
		c.Set(authTokenKey, raw)
		c.Next()
	}
}

// AuthOptional corre la misma cadena pero degrada toda falla a anonimo.
// Para endpoints publicos que personalizan salida si hay identidad valida.
func AuthOptional(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		sess, claims, err := authSvc.AuthenticateToken(c.Request.Context(), raw)
		if err != nil {
			c.Next()
			return
		}
		c.Set(authSessionKey, sess)
		c.Set(authClaimsKey, claims)
		c.Set(authTokenKey, raw)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

// GetAuthSession obtiene la sesion autenticada desde el contexto.
func GetAuthSession(c *gin.Context) (service.Session, bool) {
	val, ok := c.Get(authSessionKey)
	if !ok {
		return service.Session{}, false
	}
	sess, ok := val.(service.Session)
	return sess, ok
}

// GetAuthClaims obtiene los claims verificados desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

func getAuthToken(c *gin.Context) string {
	return c.GetString(authTokenKey)
}
