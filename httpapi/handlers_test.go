package httpapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	authcore "github.com/vidyalay/authcore"
	"github.com/vidyalay/authcore/httpapi"
	"github.com/vidyalay/authcore/middleware"
	"github.com/vidyalay/authcore/userstore"
)

func apiConfig() authcore.Config {
	cfg := authcore.Config{}
	cfg.Tokens = authcore.TokenConfig{
		AccessTTL:     2 * time.Hour,
		RefreshTTL:    15 * 24 * time.Hour,
		AccessSecret:  []byte("access-secret-access-secret-0001"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-01"),
		Issuer:        "authcore",
	}
	cfg.Password = authcore.PasswordConfig{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Cookies = authcore.CookieConfig{
		AccessName:  "accessToken",
		RefreshName: "refreshCookie",
		Path:        "/",
		Secure:      true,
		HTTPOnly:    true,
		SameSite:    http.SameSiteNoneMode,
	}
	cfg.Account = authcore.AccountConfig{Enabled: true, DefaultRoles: authcore.RoleStudent}
	return cfg
}

func newTestServer(t *testing.T) (http.Handler, *authcore.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := apiConfig()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(userstore.NewStore(rdb, "ac", cfg.Tokens.RefreshTTL)).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := httpapi.NewRouter(engine, cfg, logger, func(r chi.Router) {
		r.Get("/api/courses", func(w http.ResponseWriter, req *http.Request) {
			res, _ := middleware.AuthResultFromContext(req.Context())
			w.Write([]byte("courses for " + res.UserID))
		})
	})

	return router, engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func register(t *testing.T, router http.Handler) {
	t.Helper()

	body := `{"name":"Asha Verma","mobile":"9876500001","password":"correct-password-123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func login(t *testing.T, router http.Handler) *http.Response {
	t.Helper()

	body := `{"mobile":"9876500001","password":"correct-password-123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	return rec.Result()
}

func cookieByName(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestLoginSetsCookiePair(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	register(t, router)
	res := login(t, router)

	access := cookieByName(t, res, "accessToken")
	refresh := cookieByName(t, res, "refreshCookie")

	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteNoneMode {
			t.Fatalf("cookie %s missing browser attributes: %+v", c.Name, c)
		}
		if c.Value == "" {
			t.Fatalf("cookie %s is empty", c.Name)
		}
	}
	if access.MaxAge != int((2 * time.Hour).Seconds()) {
		t.Fatalf("access cookie MaxAge %d", access.MaxAge)
	}
	if refresh.MaxAge != int((15 * 24 * time.Hour).Seconds()) {
		t.Fatalf("refresh cookie MaxAge %d", refresh.MaxAge)
	}
}

func TestLoginRejectsBadBodyAndBadCredentials(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	register(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"mobile":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for validation failure, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"mobile":"9876500001","password":"wrong-password"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 without json content type, got %d", rec.Code)
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	register(t, router)
	loginRes := login(t, router)
	refresh := cookieByName(t, loginRes, "refreshCookie")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/refresh", nil)
	req.AddCookie(refresh)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rotated := cookieByName(t, rec.Result(), "refreshCookie")
	if rotated.Value == refresh.Value {
		t.Fatal("refresh must rotate the cookie value")
	}

	// Replaying the consumed cookie is reuse: 403 plus cookie clearing.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/refresh", nil)
	req.AddCookie(refresh)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for reuse, got %d", rec.Code)
	}
	cleared := cookieByName(t, rec.Result(), "refreshCookie")
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("reuse must clear the refresh cookie: %+v", cleared)
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a cookie, got %d", rec.Code)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	register(t, router)
	loginRes := login(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	req.AddCookie(cookieByName(t, loginRes, "refreshCookie"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}

	for _, name := range []string{"accessToken", "refreshCookie"} {
		c := cookieByName(t, rec.Result(), name)
		if c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("logout must clear %s: %+v", name, c)
		}
	}

	// Logging out again with no cookie still succeeds.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("repeated logout: expected 204, got %d", rec.Code)
	}
}

func TestMeAndGuardedRoute(t *testing.T) {
	router, engine, done := newTestServer(t)
	defer done()

	register(t, router)
	loginRes := login(t, router)
	access := cookieByName(t, loginRes, "accessToken")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(access)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Asha Verma") {
		t.Fatalf("me body missing identity: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.AddCookie(access)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("guarded route: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("guarded route without token: expected 401, got %d", rec.Code)
	}

	// Validate works against the same token the cookie carries.
	if _, err := engine.Validate(context.Background(), access.Value); err != nil {
		t.Fatalf("cookie token failed validation: %v", err)
	}
}

func TestMeAlwaysUnauthorizedOnTokenFailure(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	// No token at all.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: expected 401, got %d", rec.Code)
	}

	// A garbled cookie is 403 on guarded routes, but the identity endpoint
	// answers 401 for every token problem.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "garbage-not-a-jwt"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me with garbled token: expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "UNAUTHORIZED") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestRegisterDuplicateReturnsConflict(t *testing.T) {
	router, _, done := newTestServer(t)
	defer done()

	register(t, router)

	body := `{"name":"Asha Verma","mobile":"9876500001","password":"correct-password-123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
