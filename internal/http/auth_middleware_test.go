package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"oba-connect/internal/domain"
	"oba-connect/internal/realtime"
	"oba-connect/internal/repository"
	"oba-connect/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]domain.User)}
}

func (m *stubUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *stubUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *stubUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *stubUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *stubUserRepo) ExistsEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *stubUserRepo) ExistsUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	return err == nil, nil
}

func (m *stubUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return m.update(id, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.ResetTokenHash = ""
		u.ResetExpiresAt = nil
	})
}

func (m *stubUserRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return m.update(id, func(u *domain.User) {
		u.ResetTokenHash = tokenHash
		u.ResetExpiresAt = &expiresAt
	})
}

func (m *stubUserRepo) SetVerificationToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return m.update(id, func(u *domain.User) {
		u.VerificationTokenHash = tokenHash
		u.VerificationExpiresAt = &expiresAt
	})
}

func (m *stubUserRepo) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetTokenHash == tokenHash && u.ResetExpiresAt != nil && u.ResetExpiresAt.After(now) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *stubUserRepo) GetByVerificationToken(_ context.Context, tokenHash string, now time.Time) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.VerificationTokenHash == tokenHash && u.VerificationExpiresAt != nil && u.VerificationExpiresAt.After(now) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *stubUserRepo) MarkVerified(_ context.Context, id string, bonusPoints int) error {
	return m.update(id, func(u *domain.User) {
		u.EmailVerified = true
		u.VerificationTokenHash = ""
		u.VerificationExpiresAt = nil
		u.Points += bonusPoints
	})
}

func (m *stubUserRepo) RecordLogin(_ context.Context, id string, rec domain.LoginRecord) error {
	return m.update(id, func(u *domain.User) {
		u.LoginHistory = append([]domain.LoginRecord{rec}, u.LoginHistory...)
		if len(u.LoginHistory) > domain.LoginHistoryLimit {
			u.LoginHistory = u.LoginHistory[:domain.LoginHistoryLimit]
		}
		u.LastActiveAt = &rec.At
	})
}

func (m *stubUserRepo) TouchLastActive(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(u *domain.User) { u.LastActiveAt = &at })
}

func (m *stubUserRepo) BumpTokenVersion(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.TokenVersion++
	m.users[id] = user
	return user.TokenVersion, nil
}

func (m *stubUserRepo) UpdateStatus(_ context.Context, id, status string) error {
	return m.update(id, func(u *domain.User) { u.Status = status })
}

func (m *stubUserRepo) update(id string, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&user)
	m.users[id] = user
	return nil
}

func (m *stubUserRepo) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

type captureSender struct {
	mu         sync.Mutex
	verifyLink string
	resetLink  string
}

func (s *captureSender) SendVerification(_ context.Context, _, link string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyLink = link
	return nil
}

func (s *captureSender) SendPasswordReset(_ context.Context, _, link string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLink = link
	return nil
}

type testEnv struct {
	router *gin.Engine
	svc    *service.AuthService
	repo   *stubUserRepo
	cache  service.SessionCache
	sender *captureSender
	hub    *realtime.Hub
}

func newTestEnv(t *testing.T, accessTTL time.Duration, limiter service.RateLimiter) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	repo := newStubUserRepo()
	sender := &captureSender{}
	cache := service.NewMemorySessionCache(15 * time.Minute)
	tokens := service.NewTokenService("access-secret", "refresh-secret", accessTTL, 30*time.Minute)
	svc := service.NewAuthService(logger, repo, tokens, nil, nil, cache, nil, sender, "http://localhost:8080", bcrypt.MinCost)
	hub := realtime.NewHub(logger)
	router := NewRouter(logger, svc, limiter, NewAuthHandler(logger, svc, hub), NewRealtimeHandler(hub))
	return &testEnv{router: router, svc: svc, repo: repo, cache: cache, sender: sender, hub: hub}
}

func (e *testEnv) registerUser(t *testing.T, emailAddr, username string) (domain.User, service.TokenPair) {
	t.Helper()
	user, pair, err := e.svc.Register(context.Background(), service.RegisterInput{
		FirstName: "Ada",
		LastName:  "Obi",
		Username:  username,
		Email:     emailAddr,
		Password:  "Password123",
		Profile:   domain.DiasporaProfile{CurrentCountry: "DE", CurrentCity: "Berlin", OriginCity: "Lagos"},
	})
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	return user, pair
}

func doJSON(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "10.0.0.9:1234"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["code"] != code {
		t.Fatalf("expected code %q, got %v", code, body["code"])
	}
	if success, ok := body["success"].(bool); !ok || success {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
}

func protectedRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	r.GET("/protected", AuthRequired(env.svc), func(c *gin.Context) {
		sess, _ := GetAuthSession(c)
		claims, _ := GetAuthClaims(c)
		c.JSON(http.StatusOK, gin.H{"id": sess.ID, "tokenUser": claims.UserID})
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute, nil)
	r := protectedRouter(env)

	t.Run("valid token", func(t *testing.T) {
		user, pair := env.registerUser(t, "mw1@x.com", "mw1")
		w := doJSON(t, r, http.MethodGet, "/protected", pair.AccessToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["id"] != user.ID || body["tokenUser"] != user.ID {
			t.Fatalf("expected session for %q, got %v", user.ID, body)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/protected", "", nil)
		assertErrorCode(t, w, http.StatusUnauthorized, CodeUnauthenticated)
	})

	t.Run("malformed token", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/protected", "not-a-jwt", nil)
		assertErrorCode(t, w, http.StatusUnauthorized, CodeInvalidToken)
	})

	t.Run("revoked token", func(t *testing.T) {
		_, pair := env.registerUser(t, "mw2@x.com", "mw2")
		if w := doJSON(t, env.router, http.MethodPost, "/auth/logout", pair.AccessToken, nil); w.Code != http.StatusOK {
			t.Fatalf("logout: %d (%s)", w.Code, w.Body.String())
		}
		w := doJSON(t, r, http.MethodGet, "/protected", pair.AccessToken, nil)
		assertErrorCode(t, w, http.StatusUnauthorized, CodeTokenRevoked)
	})

	t.Run("suspended account", func(t *testing.T) {
		user, pair := env.registerUser(t, "mw3@x.com", "mw3")
		if err := env.repo.UpdateStatus(context.Background(), user.ID, domain.StatusSuspended); err != nil {
			t.Fatalf("suspend: %v", err)
		}
		env.cache.Invalidate(context.Background(), user.ID)
		w := doJSON(t, r, http.MethodGet, "/protected", pair.AccessToken, nil)
		assertErrorCode(t, w, http.StatusForbidden, CodeAccountNotActive)
	})

	t.Run("deleted user", func(t *testing.T) {
		user, pair := env.registerUser(t, "mw4@x.com", "mw4")
		env.repo.remove(user.ID)
		env.cache.Invalidate(context.Background(), user.ID)
		w := doJSON(t, r, http.MethodGet, "/protected", pair.AccessToken, nil)
		assertErrorCode(t, w, http.StatusUnauthorized, CodeUserNotFound)
	})
}

func TestAuthRequired_ExpiredToken(t *testing.T) {
	env := newTestEnv(t, time.Millisecond, nil)
	r := protectedRouter(env)

	_, pair := env.registerUser(t, "mw5@x.com", "mw5")
	time.Sleep(20 * time.Millisecond)
	w := doJSON(t, r, http.MethodGet, "/protected", pair.AccessToken, nil)
	assertErrorCode(t, w, http.StatusUnauthorized, CodeTokenExpired)
}

func TestAuthOptional(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute, nil)
	r := gin.New()
	r.GET("/feed", AuthOptional(env.svc), func(c *gin.Context) {
		if sess, ok := GetAuthSession(c); ok {
			c.JSON(http.StatusOK, gin.H{"viewer": sess.ID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"viewer": "anonymous"})
	})

	t.Run("without token", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/feed", "", nil)
		if w.Code != http.StatusOK || decodeBody(t, w)["viewer"] != "anonymous" {
			t.Fatalf("expected anonymous 200, got %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("invalid token degrades to anonymous", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/feed", "garbage", nil)
		if w.Code != http.StatusOK || decodeBody(t, w)["viewer"] != "anonymous" {
			t.Fatalf("expected anonymous 200, got %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		user, pair := env.registerUser(t, "opt@x.com", "opt")
		w := doJSON(t, r, http.MethodGet, "/feed", pair.AccessToken, nil)
		if w.Code != http.StatusOK || decodeBody(t, w)["viewer"] != user.ID {
			t.Fatalf("expected viewer %q, got %d (%s)", user.ID, w.Code, w.Body.String())
		}
	})
}
