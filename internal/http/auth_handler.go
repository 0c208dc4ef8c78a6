package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oba-connect/internal/domain"
	"oba-connect/internal/realtime"
	"oba-connect/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticacion.
type AuthHandler struct {
	logger  *zap.Logger
	authSvc *service.AuthService
	hub     *realtime.Hub
}

func NewAuthHandler(logger *zap.Logger, authSvc *service.AuthService, hub *realtime.Hub) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		authSvc: authSvc,
		hub:     hub,
	}
}

type diasporaProfileBody struct {
	CurrentCountry     string   `json:"currentCountry" binding:"required"`
	CurrentCity        string   `json:"currentCity" binding:"required"`
	OriginCity         string   `json:"originCity" binding:"required"`
	DiasporaGeneration int      `json:"diasporaGeneration"`
	YearsInDiaspora    int      `json:"yearsInDiaspora"`
	Languages          []string `json:"languages"`
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		FirstName       string              `json:"firstName" binding:"required"`
		LastName        string              `json:"lastName" binding:"required"`
		Username        string              `json:"username" binding:"required,min=3,max=30"`
		Email           string              `json:"email" binding:"required,email"`
		Password        string              `json:"password" binding:"required,min=8"`
		ConfirmPassword string              `json:"confirmPassword" binding:"required,eqfield=Password"`
		DiasporaProfile diasporaProfileBody `json:"diasporaProfile" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		fail(c, http.StatusBadRequest, CodeValidation, "invalid request")
		return
	}

	user, pair, err := h.authSvc.Register(c.Request.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Profile: domain.DiasporaProfile{
			CurrentCountry:     req.DiasporaProfile.CurrentCountry,
			CurrentCity:        req.DiasporaProfile.CurrentCity,
			OriginCity:         req.DiasporaProfile.OriginCity,
			DiasporaGeneration: req.DiasporaProfile.DiasporaGeneration,
			YearsInDiaspora:    req.DiasporaProfile.YearsInDiaspora,
			Languages:          req.DiasporaProfile.Languages,
		},
	})
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user, "tokens": pair})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		fail(c, http.StatusBadRequest, CodeValidation, "invalid request")
		return
	}

	user, pair, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user, "tokens": pair})
}

// RefreshToken maneja POST /auth/refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeValidation, "invalid request")
		return
	}
	pair, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": pair})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		failErr(c, service.ErrUnauthenticated)
		return
	}
	h.authSvc.Logout(c.Request.Context(), getAuthToken(c), claims)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LogoutAll maneja POST /auth/logout-all: invalida todas las sesiones.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		failErr(c, service.ErrUnauthenticated)
		return
	}
	if err := h.authSvc.LogoutAll(c.Request.Context(), getAuthToken(c), claims); err != nil {
		failErr(c, err)
		return
	}
	h.notifySessionRevoked(claims.UserID, "logout_all")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	sess, ok := GetAuthSession(c)
	if !ok {
		failErr(c, service.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": sess})
}

// ForgotPassword maneja POST /auth/forgot-password.
// La respuesta es identica exista o no la cuenta.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeValidation, "invalid request")
		return
	}
	if err := h.authSvc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "if the email exists, a reset link was sent"})
}

// ResetPassword maneja POST /auth/reset-password/:token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeValidation, "invalid request")
		return
	}
	user, pair, err := h.authSvc.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	h.notifySessionRevoked(user.ID, "password_reset")
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user, "tokens": pair})
}

// VerifyEmail maneja GET /auth/verify-email/:token.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	user, err := h.authSvc.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// ResendVerification maneja POST /auth/resend-verification.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	sess, ok := GetAuthSession(c)
	if !ok {
		failErr(c, service.ErrUnauthenticated)
		return
	}
	if err := h.authSvc.ResendVerification(c.Request.Context(), sess.ID); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "verification email sent"})
}

// ChangePassword maneja POST /auth/change-password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	sess, ok := GetAuthSession(c)
	if !ok {
		failErr(c, service.ErrUnauthenticated)
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeValidation, "invalid request")
		return
	}
	pair, err := h.authSvc.ChangePassword(c.Request.Context(), sess.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		failErr(c, err)
		return
	}
	h.notifySessionRevoked(sess.ID, "password_change")
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": pair})
}

// notifySessionRevoked avisa a otros clientes abiertos que suelten sus tokens.
func (h *AuthHandler) notifySessionRevoked(userID, reason string) {
	if h.hub == nil {
		return
	}
	h.hub.Publish("user:"+userID, "session_revoked", gin.H{"reason": reason})
}
