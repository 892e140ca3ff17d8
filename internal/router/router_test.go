package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/access-control-api/internal/config"
	"github.com/iliyamo/access-control-api/internal/handler"
	"github.com/iliyamo/access-control-api/internal/logging"
	"github.com/iliyamo/access-control-api/internal/middleware"
	"github.com/iliyamo/access-control-api/internal/repository/memstore"
	"github.com/iliyamo/access-control-api/internal/service"
	"github.com/iliyamo/access-control-api/internal/utils"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type envelope struct {
	Success   bool            `json:"success"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Errors    []string        `json:"errors"`
	RequestID string          `json:"request_id"`
}

type session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID       int64  `json:"id"`
		Email    string `json:"email"`
		RoleName string `json:"roleName"`
	} `json:"user"`
}

type server struct {
	e  *echo.Echo
	db *memstore.DB
}

func newServer(t *testing.T, db handler.Pinger) *server {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logging.Discard()
	store := memstore.Seeded()
	tokens := utils.TokenConfig{Secret: strings.Repeat("r", 32), Issuer: "access-control-api", TTL: time.Hour}
	cache := middleware.NewResponseCache(config.CacheConfig{
		Enabled: true, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20,
	}, rdb, log)

	users := store.Users()
	sessions := service.NewSessions(tokens, 24*time.Hour, store.RefreshTokens(), users)
	accounts := service.NewAccounts(users, store.Roles(), sessions, nil, log,
		service.AccountsConfig{BcryptCost: bcrypt.MinCost, DefaultRoleID: 2})
	d := Deps{
		Log:      log,
		Tokens:   tokens,
		Cache:    cache,
		Registry: prometheus.NewRegistry(),
		Auth: &handler.AuthHandler{
			Provisioning: service.NewProvisioning(users, store.Invitations(), sessions, nil, log,
				service.ProvisioningConfig{BcryptCost: bcrypt.MinCost, TopRoleID: 1}),
			Accounts:        accounts,
			Sessions:        sessions,
			Reset:           service.NewPasswordReset(store.ResetTokens(), users, accounts, nil, log, 0),
			Authz:           service.NewAuthorizer(users),
			ExposeResetCode: true,
		},
		Users:       &handler.UserHandler{Accounts: accounts},
		RBAC:        &handler.RBACHandler{RBAC: service.NewRBAC(store.Roles(), store.Privileges(), users, store.Invitations(), log)},
		Invitations: &handler.InvitationHandler{Invitations: service.NewInvitations(store.Invitations(), store.Roles(), nil, log, 7)},
		Policies:    &handler.PolicyHandler{Policies: service.NewPolicies(store.Policies(), cache, log)},
		Status:      &handler.StatusHandler{DB: db, Version: "test", Env: "test"},
	}
	return &server{e: New(d), db: store}
}

func (s *server) do(t *testing.T, method, target, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *server) signup(t *testing.T, email string) (*httptest.ResponseRecorder, envelope, session) {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/auth/signup", "", echo.Map{
		"firstName": "Test",
		"lastName":  "User",
		"email":           email,
		"password":        "secret-pw",
		"confirmPassword": "secret-pw",
	})
	var sess session
	if rec.Code == http.StatusCreated {
		require.NoError(t, json.Unmarshal(env.Data, &sess))
	}
	return rec, env, sess
}

func TestProbes(t *testing.T) {
	s := newServer(t, pinger{})

	rec, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec, env := s.do(t, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	down := newServer(t, pinger{err: errors.New("connection refused")})
	rec, env = down.do(t, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, handler.TagUnavailable, env.Status)

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestInvitationGatedSignup(t *testing.T) {
	s := newServer(t, pinger{})

	rec, env, root := s.signup(t, "root@example.com")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, handler.TagOK, env.Status)
	assert.Equal(t, "Super Admin", root.User.RoleName)
	require.NotEmpty(t, root.Token)

	rec, env, _ = s.signup(t, "guest@example.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.TagNotInvited, env.Status)
	assert.Equal(t, service.NotInvitedMessage, env.Message)

	rec, env = s.do(t, http.MethodPost, "/api/invitations", "", echo.Map{"email": "guest@example.com", "roleId": 2})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handler.TagUnauthorized, env.Status)

	rec, _ = s.do(t, http.MethodPost, "/api/invitations", root.Token, echo.Map{"email": "guest@example.com", "roleId": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/api/invitations/check?email=guest@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chk struct {
		IsInvited bool   `json:"isInvited"`
		RoleName  string `json:"roleName"`
		IsExpired bool   `json:"isExpired"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chk))
	assert.True(t, chk.IsInvited)
	assert.Equal(t, "Normal User", chk.RoleName)
	assert.False(t, chk.IsExpired)

	rec, _, guest := s.signup(t, "guest@example.com")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Normal User", guest.User.RoleName)

	rec, env, _ = s.signup(t, "guest@example.com")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", env.Message)

	t.Run("normal user cannot list users", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/api/users", guest.Token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, handler.TagForbidden, env.Status)
	})

	t.Run("super admin lists users", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/api/users", root.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &list))
		assert.Len(t, list, 2)
	})

	t.Run("role check reads stored role", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/api/auth/role-check?role=Super%20Admin", guest.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res struct {
			HasRole bool `json:"hasRole"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.False(t, res.HasRole)
	})
}

func TestValidationEnvelope(t *testing.T) {
	s := newServer(t, pinger{})

	rec, env := s.do(t, http.MethodPost, "/api/auth/signup", "", echo.Map{
		"firstName": "A",
		"lastName":  "B",
		"email":     "not-an-email",
		"password":  "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.TagValidationFailed, env.Status)
	assert.Contains(t, env.Errors, "email must be a valid email")
	assert.Contains(t, env.Errors, "password must be at least 6")

	t.Run("confirmation mismatch", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPost, "/api/auth/signup", "", echo.Map{
			"firstName":       "A",
			"lastName":        "B",
			"email":           "a@example.com",
			"password":        "secret-pw",
			"confirmPassword": "secret-pX",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, handler.TagValidationFailed, env.Status)
		assert.Equal(t, []string{"confirmPassword must match password"}, env.Errors)
	})

	t.Run("password longer than bcrypt accepts", func(t *testing.T) {
		long := strings.Repeat("p", 80)
		rec, env := s.do(t, http.MethodPost, "/api/auth/signup", "", echo.Map{
			"firstName":       "A",
			"lastName":        "B",
			"email":           "a@example.com",
			"password":        long,
			"confirmPassword": long,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, handler.TagValidationFailed, env.Status)
		assert.Contains(t, env.Errors, "password must be at most 72")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	raw := httptest.NewRecorder()
	s.e.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec, env = s.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handler.TagNotFound, env.Status)
}

func TestSessionLifecycle(t *testing.T) {
	s := newServer(t, pinger{})
	_, _, root := s.signup(t, "root@example.com")

	rec, env := s.do(t, http.MethodPost, "/api/auth/login", "", echo.Map{"login": "root@example.com", "password": "secret-pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/api/auth/me", root.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "root@example.com", me.Email)

	rec, env = s.do(t, http.MethodPost, "/api/auth/refresh-token", "", echo.Map{"refreshToken": root.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var next session
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.NotEqual(t, root.RefreshToken, next.RefreshToken)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh-token", "", echo.Map{"refreshToken": root.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/logout", next.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh-token", "", echo.Map{"refreshToken": next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newServer(t, pinger{})
	s.signup(t, "root@example.com")

	rec, env := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", echo.Map{"email": "root@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issued))
	require.Len(t, issued.Code, 6)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/forgot-password", "", echo.Map{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code, "unknown emails look the same")

	rec, _ = s.do(t, http.MethodPost, "/api/auth/verify-code", "", echo.Map{"email": "root@example.com", "code": issued.Code})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/reset-password", "", echo.Map{
		"email": "root@example.com", "code": issued.Code, "newPassword": "brand-new", "confirmPassword": "brand-new",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", "", echo.Map{"email": "root@example.com", "password": "brand-new"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicyCacheInvalidation(t *testing.T) {
	s := newServer(t, pinger{})
	_, _, root := s.signup(t, "root@example.com")

	rec, _ := s.do(t, http.MethodGet, "/api/policy/terms", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec, _ = s.do(t, http.MethodGet, "/api/policy/terms", "", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec, _ = s.do(t, http.MethodPost, "/api/policy", root.Token, echo.Map{"type": "terms", "content": "v2", "version": "2.0"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := s.do(t, http.MethodGet, "/api/policy/terms", "", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	var p struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "2.0", p.Version)
}
