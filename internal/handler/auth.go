package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/staykit/pms/internal/directory"
	mw "github.com/staykit/pms/internal/middleware"
	"github.com/staykit/pms/internal/session"
	"go.uber.org/zap"
)

// AuthDirectory defines the directory methods needed by auth handlers.
// Satisfied by *directory.Directory; narrow interface for testability.
type AuthDirectory interface {
	Login(ctx context.Context, email, password string) (*session.AuthResult, error)
	Register(ctx context.Context, data session.RegisterData) (*session.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*session.AuthResult, error)
	User(ctx context.Context, id uuid.UUID) (*session.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, data session.ProfileUpdate) (*session.User, error)
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	dir       AuthDirectory
	jwtSecret string
	limit     func(http.Handler) http.Handler
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. limit, if non-nil, wraps the
// credential endpoints.
func NewAuthHandler(dir AuthDirectory, jwtSecret string, limit func(http.Handler) http.Handler, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{dir: dir, jwtSecret: jwtSecret, limit: limit, logger: logger}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limit != nil {
			r.Use(h.limit)
		}
		r.Post("/auth/login", h.Login)
		r.Post("/auth/register", h.Register)
	})
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(h.jwtSecret))
		r.Get("/auth/me", h.Me)
		r.Patch("/auth/profile", h.UpdateProfile)
	})
}

// --- Request types ---

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// --- Handlers ---

// Login handles email + password authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.Credentials
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	res, err := h.dir.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Register creates a guest account and returns a token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterData
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.dir.Register(r.Context(), req)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Refresh exchanges a valid refresh token for a new access + refresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
		return
	}

	res, err := h.dir.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Logout revokes the refresh token. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.dir.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Warn("logout failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := mw.ClaimsFromContext(r.Context())
	user, err := h.dir.User(r.Context(), claims.UserID)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile changes the authenticated user's display name, phone or avatar.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req session.ProfileUpdate
	if !decodeBody(w, r, &req) {
		return
	}

	claims := mw.ClaimsFromContext(r.Context())
	user, err := h.dir.UpdateProfile(r.Context(), claims.UserID, req)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- Helpers ---

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, directory.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
	case errors.Is(err, directory.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case errors.Is(err, directory.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, directory.ErrEmailRequired),
		errors.Is(err, directory.ErrWeakPassword),
		errors.Is(err, directory.ErrNameRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeInternalError(w, h.logger, "auth request failed", err)
	}
}
