package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oba-connect/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authSvc *service.AuthService,
	limiter service.RateLimiter,
	authH *AuthHandler,
	rtH *RealtimeHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	authRequired := AuthRequired(authSvc)
	authOptional := AuthOptional(authSvc)
	rateLimited := RateLimit(limiter)

	auth := r.Group("/auth")
	auth.POST("/register", rateLimited, authH.Register)
	auth.POST("/login", rateLimited, authH.Login)
	auth.POST("/refresh-token", authH.RefreshToken)
	auth.POST("/logout", authRequired, authH.Logout)
	auth.POST("/logout-all", authRequired, authH.LogoutAll)
	auth.GET("/me", authRequired, authH.Me)
	auth.POST("/forgot-password", rateLimited, authH.ForgotPassword)
	auth.POST("/reset-password/:token", authH.ResetPassword)
	auth.GET("/verify-email/:token", authH.VerifyEmail)
	auth.POST("/resend-verification", authRequired, rateLimited, authH.ResendVerification)
	auth.POST("/change-password", authRequired, authH.ChangePassword)

	r.GET("/ws/:room", authOptional, rtH.Subscribe)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
