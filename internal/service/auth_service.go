package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"oba-connect/internal/domain"
	"oba-connect/internal/email"
	"oba-connect/internal/repository"
)

const (
	verificationTTL   = 24 * time.Hour
	resetTTL          = 30 * time.Minute
	verifyBonusPoints = 50
)

// AuthService coordina registro, login y el ciclo de vida de sesiones.
type AuthService struct {
	logger           *zap.Logger
	users            repository.UserRepository
	tokens           *TokenService
	accessBlacklist  RevocationRegistry
	refreshBlacklist RevocationRegistry
	cache            SessionCache
	slot             RefreshSlot
	sender           email.Sender
	baseURL          string
	bcryptCost       int
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokens *TokenService,
	accessBlacklist RevocationRegistry,
	refreshBlacklist RevocationRegistry,
	cache SessionCache,
	slot RefreshSlot,
	sender email.Sender,
	baseURL string,
	bcryptCost int,
) *AuthService {
	if accessBlacklist == nil {
		accessBlacklist = NewMemoryRevocationRegistry()
	}
	if refreshBlacklist == nil {
		refreshBlacklist = NewMemoryRevocationRegistry()
	}
	if cache == nil {
		cache = NewMemorySessionCache(15 * time.Minute)
	}
	if slot == nil {
		slot = NewMemoryRefreshSlot()
	}
	if sender == nil {
		sender = email.NewDisabledSender("email sender not configured")
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		logger:           logger,
		users:            users,
		tokens:           tokens,
		accessBlacklist:  accessBlacklist,
		refreshBlacklist: refreshBlacklist,
		cache:            cache,
		slot:             slot,
		sender:           sender,
		baseURL:          strings.TrimRight(baseURL, "/"),
		bcryptCost:       bcryptCost,
	}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
	Profile   domain.DiasporaProfile
}

// Register crea la cuenta, emite el par de tokens y dispara la verificacion.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.User, TokenPair, error) {
	emailAddr := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	if taken, err := s.users.ExistsEmail(ctx, emailAddr); err != nil {
		return domain.User{}, TokenPair{}, s.storeError("exists email", err)
	} else if taken {
		return domain.User{}, TokenPair{}, ErrEmailExists
	}
	if taken, err := s.users.ExistsUsername(ctx, username); err != nil {
		return domain.User{}, TokenPair{}, s.storeError("exists username", err)
	} else if taken {
		return domain.User{}, TokenPair{}, ErrUsernameExists
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}

	rawToken, tokenHash, err := generateOneTimeToken()
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	verifyExpiry := time.Now().UTC().Add(verificationTTL)

	now := time.Now().UTC()
	user := domain.User{
		ID:                    uuid.NewString(),
		FirstName:             strings.TrimSpace(input.FirstName),
		LastName:              strings.TrimSpace(input.LastName),
		Username:              username,
		Email:                 emailAddr,
		PasswordHash:          string(hashBytes),
		Status:                domain.StatusActive,
		Role:                  domain.RoleUser,
		VerificationTokenHash: tokenHash,
		VerificationExpiresAt: &verifyExpiry,
		Profile:               input.Profile,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Un registro concurrente puede colarse entre los pre-checks y el
		// insert; el indice unico decide y aca se traduce al sentinel.
		if errors.Is(err, repository.ErrDuplicateKey) {
			if taken, checkErr := s.users.ExistsEmail(ctx, emailAddr); checkErr == nil && taken {
				return domain.User{}, TokenPair{}, ErrEmailExists
			}
			return domain.User{}, TokenPair{}, ErrUsernameExists
		}
		return domain.User{}, TokenPair{}, s.storeError("create user", err)
	}

	// El correo de verificacion es best-effort: existe resend-verification.
	link := s.baseURL + "/auth/verify-email/" + rawToken
	if err := s.sender.SendVerification(ctx, user.Email, link, verifyExpiry); err != nil {
		s.warn("send verification failed", err, user.Email)
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Login valida credenciales sin revelar cual de las dos fallo.
func (s *AuthService) Login(ctx context.Context, emailAddr, password, ip, userAgent string) (domain.User, TokenPair, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return domain.User{}, TokenPair{}, s.storeError("get by email", err)
	}
	if user.PasswordHash == "" {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return domain.User{}, TokenPair{}, &AccountStatusError{Status: user.Status}
	}

	rec := domain.LoginRecord{At: time.Now().UTC(), IP: ip, UserAgent: userAgent}
	if err := s.users.RecordLogin(ctx, user.ID, rec); err != nil {
		s.warn("record login failed", err, user.Email)
	}
	user.LastActiveAt = &rec.At

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh rota el refresh token: revoca el presentado y emite un par nuevo.
// La revocacion del valor viejo es best-effort; la ventana de replay queda
// acotada por el diseno fail-open del registro.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(rawRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if s.refreshBlacklist.IsRevoked(ctx, rawRefresh) {
		return TokenPair{}, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, s.storeError("get by id", err)
	}
	if !user.IsActive() {
		return TokenPair{}, &AccountStatusError{Status: user.Status}
	}
	if claims.TokenVersion != user.TokenVersion {
		return TokenPair{}, ErrTokenRevoked
	}

	// El slot guarda el jti vigente: vacio significa sesion cerrada y un
	// jti distinto significa token ya rotado. Solo el error de lectura
	// degrada a permitir (fail open sobre el store, no sobre el logout).
	if current, err := s.slot.Get(ctx, user.ID); err != nil {
		s.warn("refresh slot read failed", err, user.Email)
	} else if current != claims.ID {
		return TokenPair{}, ErrTokenRevoked
	}

	s.refreshBlacklist.MarkRevoked(ctx, rawRefresh, Remaining(claims))

	return s.openSession(ctx, user)
}

// AuthenticateToken recorre la cadena completa de autenticacion de un request.
func (s *AuthService) AuthenticateToken(ctx context.Context, rawAccess string) (Session, Claims, error) {
	claims, err := s.tokens.ParseAccess(rawAccess)
	if err != nil {
		return Session{}, Claims{}, err
	}
	if s.accessBlacklist.IsRevoked(ctx, rawAccess) {
		return Session{}, Claims{}, ErrTokenRevoked
	}

	sess, ok := s.cache.Get(ctx, claims.UserID)
	if !ok {
		user, err := s.users.GetByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return Session{}, Claims{}, ErrUserNotFound
			}
			return Session{}, Claims{}, s.storeError("get by id", err)
		}
		sess = SessionFromUser(user)
		s.cache.Set(ctx, user.ID, sess)
	}

	if claims.TokenVersion != sess.TokenVersion {
		return Session{}, Claims{}, ErrTokenRevoked
	}
	if sess.Status != domain.StatusActive {
		return Session{}, Claims{}, &AccountStatusError{Status: sess.Status}
	}

	// Identidad y rol salen del token verificado, no del cache.
	sess.Identity = domain.Identity{
		ID:       claims.UserID,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
		Status:   sess.Status,
	}

	s.touchLastActive(claims.UserID)
	return sess, claims, nil
}

// Logout revoca el access token presentado y cierra la sesion vigente.
func (s *AuthService) Logout(ctx context.Context, rawAccess string, claims Claims) {
	s.accessBlacklist.MarkRevoked(ctx, rawAccess, Remaining(claims))
	if err := s.slot.Clear(ctx, claims.UserID); err != nil {
		s.warn("refresh slot clear failed", err, claims.Email)
	}
	s.cache.Invalidate(ctx, claims.UserID)
}

// LogoutAll invalida todas las sesiones del usuario subiendo la epoch de
// tokens: cualquier token con version anterior muere en el middleware.
func (s *AuthService) LogoutAll(ctx context.Context, rawAccess string, claims Claims) error {
	if _, err := s.users.BumpTokenVersion(ctx, claims.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return s.storeError("bump token version", err)
	}
	s.Logout(ctx, rawAccess, claims)
	return nil
}

// ForgotPassword responde igual exista o no la cuenta (anti enumeracion).
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return s.storeError("get by email", err)
	}

	rawToken, tokenHash, err := generateOneTimeToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(resetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return s.storeError("set reset token", err)
	}

	link := s.baseURL + "/auth/reset-password/" + rawToken
	if err := s.sender.SendPasswordReset(ctx, user.Email, link, expiresAt); err != nil {
		s.warn("send password reset failed", err, user.Email)
	}
	return nil
}

// ResetPassword consume el token de un solo uso y deja al usuario logueado.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) (domain.User, TokenPair, error) {
	user, err := s.users.GetByResetToken(ctx, hashOneTimeToken(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, TokenPair{}, ErrInvalidOrExpiredToken
		}
		return domain.User{}, TokenPair{}, s.storeError("get by reset token", err)
	}
	pair, err := s.rotatePassword(ctx, user, newPassword)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// VerifyEmail consume el token de verificacion y acredita el bono.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) (domain.User, error) {
	user, err := s.users.GetByVerificationToken(ctx, hashOneTimeToken(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrInvalidOrExpiredToken
		}
		return domain.User{}, s.storeError("get by verification token", err)
	}
	if err := s.users.MarkVerified(ctx, user.ID, verifyBonusPoints); err != nil {
		return domain.User{}, s.storeError("mark verified", err)
	}
	s.cache.Invalidate(ctx, user.ID)

	user.EmailVerified = true
	user.Points += verifyBonusPoints
	user.VerificationTokenHash = ""
	user.VerificationExpiresAt = nil
	return user, nil
}

// ResendVerification regenera el token pendiente; no-op si ya esta verificado.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return s.storeError("get by id", err)
	}
	if user.EmailVerified {
		return nil
	}

	rawToken, tokenHash, err := generateOneTimeToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(verificationTTL)
	if err := s.users.SetVerificationToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return s.storeError("set verification token", err)
	}

	link := s.baseURL + "/auth/verify-email/" + rawToken
	if err := s.sender.SendVerification(ctx, user.Email, link, expiresAt); err != nil {
		s.warn("send verification failed", err, user.Email)
		return ErrEmailSendFailure
	}
	return nil
}

// ChangePassword exige re-probar la contrasena actual: un access token
// robado y aun vigente no alcanza para cambiarla.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, s.storeError("get by id", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.rotatePassword(ctx, user, newPassword)
}

// rotatePassword persiste la nueva contrasena, mata las sesiones previas
// via epoch y abre una sesion nueva.
func (s *AuthService) rotatePassword(ctx context.Context, user domain.User, newPassword string) (TokenPair, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hashBytes)); err != nil {
		return TokenPair{}, s.storeError("update password", err)
	}
	version, err := s.users.BumpTokenVersion(ctx, user.ID)
	if err != nil {
		return TokenPair{}, s.storeError("bump token version", err)
	}
	s.cache.Invalidate(ctx, user.ID)

	user.PasswordHash = string(hashBytes)
	user.TokenVersion = version
	return s.openSession(ctx, user)
}

// openSession emite el par, registra el refresh en el slot y calienta el cache.
func (s *AuthService) openSession(ctx context.Context, user domain.User) (TokenPair, error) {
	pair, jti, err := s.tokens.IssuePair(user.Identity(), user.TokenVersion)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.slot.Set(ctx, user.ID, jti, s.tokens.RefreshTTL()); err != nil {
		s.warn("refresh slot write failed", err, user.Email)
	}
	s.cache.Set(ctx, user.ID, SessionFromUser(user))
	return pair, nil
}

// touchLastActive actualiza la marca de actividad sin bloquear la respuesta.
func (s *AuthService) touchLastActive(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.users.TouchLastActive(ctx, userID, time.Now().UTC()); err != nil {
			s.warn("touch last active failed", err, userID)
		}
	}()
}

func (s *AuthService) storeError(op string, err error) error {
	if s.logger != nil {
		s.logger.Error("user store unavailable", zap.String("op", op), zap.Error(err))
	}
	return ErrServiceUnavailable
}

func (s *AuthService) warn(msg string, err error, subject string) {
	if s.logger != nil {
		s.logger.Warn(msg, zap.Error(err), zap.String("subject", subject))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
