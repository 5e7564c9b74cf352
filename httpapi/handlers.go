package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	authcore "github.com/vidyalay/authcore"
)

// Handler handles HTTP requests for the auth endpoints.
type Handler struct {
	engine *authcore.Engine
	config authcore.Config
	logger *slog.Logger
}

// NewHandler creates a new auth HTTP handler. cfg must be the same
// configuration the engine was built with so cookie names and TTLs agree.
func NewHandler(engine *authcore.Engine, cfg authcore.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, config: cfg, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for account registration.
type RegisterRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=100"`
	Identifier string `json:"mobile" validate:"required,min=4,max=100"`
	Password   string `json:"password" validate:"required,min=8,max=256"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Identifier string `json:"mobile" validate:"required,min=4,max=100"`
	Password   string `json:"password" validate:"required"`
}

// --- Response types ---

// SessionResponse is returned by login and refresh.
type SessionResponse struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Roles       int    `json:"roles"`
	AccessToken string `json:"access_token"`
}

// IdentityResponse is returned by the identity endpoint.
type IdentityResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Roles  int    `json:"roles"`
}

// --- Handlers ---

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	ctx := requestContext(r)
	res, err := h.engine.Login(ctx, req.Identifier, req.Password, h.refreshCookie(r))
	if err != nil {
		writeEngineError(w, r, err, h.logger)
		return
	}

	if res.ClearPresentedCookie {
		h.clearAuthCookies(w)
	}
	h.setAuthCookies(w, res.AccessToken, res.RefreshToken)

	writeJSON(w, http.StatusOK, response{
		Data: SessionResponse{
			UserID:      res.UserID,
			Name:        res.Name,
			Roles:       res.Roles,
			AccessToken: res.AccessToken,
		},
	})
}

// Register handles POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	id, err := h.engine.Register(requestContext(r), authcore.RegisterRequest{
		Name:       req.Name,
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		writeEngineError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, response{
		Data: IdentityResponse{
			UserID: id.UserID,
			Name:   id.Name,
			Roles:  id.Roles,
		},
	})
}

// Refresh handles GET /api/auth/refresh
//
// The browser presents only the refresh cookie; a successful rotation
// rewrites both cookies. Reuse detection clears them so a stolen cookie
// cannot keep a session alive.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Refresh(requestContext(r), h.refreshCookie(r))
	if err != nil {
		h.clearAuthCookies(w)
		writeEngineError(w, r, err, h.logger)
		return
	}

	h.setAuthCookies(w, res.AccessToken, res.RefreshToken)

	writeJSON(w, http.StatusOK, response{
		Data: SessionResponse{
			UserID:      res.UserID,
			Name:        res.Name,
			Roles:       res.Roles,
			AccessToken: res.AccessToken,
		},
	})
}

// Logout handles GET /api/auth/logout
//
// Always clears the cookies, even when the engine had nothing to revoke.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Logout(requestContext(r), h.refreshCookie(r))
	h.clearAuthCookies(w)
	if err != nil {
		writeEngineError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me
//
// Unlike the guarded resource routes, every failure here is a plain 401:
// the endpoint answers "who am I" and any token problem, expired or
// garbled alike, means the client has to authenticate again.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token := h.accessCookie(r)
	if token == "" {
		token, _ = bearerToken(r.Header.Get("Authorization"))
	}

	id, err := h.engine.Me(requestContext(r), token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	writeJSON(w, http.StatusOK, response{
		Data: IdentityResponse{
			UserID: id.UserID,
			Name:   id.Name,
			Roles:  id.Roles,
		},
	})
}

// requestContext annotates the request context with client IP and user agent
// for audit events.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if ip != "" {
		ctx = authcore.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = authcore.WithUserAgent(ctx, ua)
	}
	return ctx
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) || len(value) == len(bearer) {
		return "", false
	}
	return value[len(bearer):], true
}
