package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/staykit/pms/internal/authclient"
	"github.com/staykit/pms/internal/directory"
	"github.com/staykit/pms/internal/session"
	"github.com/staykit/pms/internal/workspace"
)

func (h *ConsoleHandler) registerSessionRoutes(r chi.Router) {
	r.Get("/", h.SessionState)
	r.Post("/initialize", h.SessionInitialize)
	r.Post("/login", h.SessionLogin)
	r.Post("/register", h.SessionRegister)
	r.Post("/logout", h.SessionLogout)
	r.Post("/refresh", h.SessionRefresh)
	r.Patch("/profile", h.SessionUpdateProfile)
	r.Get("/permissions/{permission}", h.SessionHasPermission)
}

type permissionResponse struct {
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
}

// SessionState returns the current session.
func (h *ConsoleHandler) SessionState(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	writeJSON(w, http.StatusOK, ws.Session.State())
}

// SessionInitialize resolves restored tokens into a signed-in or signed-out session.
func (h *ConsoleHandler) SessionInitialize(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	ws.Session.Initialize(r.Context())
	h.writeThrough(r.Context(), ws, "session", ws.SaveSession)
	writeJSON(w, http.StatusOK, ws.Session.State())
}

// SessionLogin signs the workspace in with email and password.
func (h *ConsoleHandler) SessionLogin(w http.ResponseWriter, r *http.Request) {
	var req session.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	_, err := ws.Session.Login(r.Context(), req)
	h.finishSession(w, r, ws, err)
}

// SessionRegister creates an account and signs the workspace in.
func (h *ConsoleHandler) SessionRegister(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	_, err := ws.Session.Register(r.Context(), req)
	h.finishSession(w, r, ws, err)
}

// SessionLogout always succeeds and clears the session.
func (h *ConsoleHandler) SessionLogout(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	ws.Session.Logout(r.Context())
	h.writeThrough(r.Context(), ws, "session", ws.SaveSession)
	writeJSON(w, http.StatusOK, ws.Session.State())
}

// SessionRefresh exchanges the refresh token for a new token pair.
func (h *ConsoleHandler) SessionRefresh(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	_, err := ws.Session.RefreshSession(r.Context())
	h.finishSession(w, r, ws, err)
}

// SessionUpdateProfile changes the signed-in user's profile.
func (h *ConsoleHandler) SessionUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req session.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	_, err := ws.Session.UpdateProfile(r.Context(), req)
	h.finishSession(w, r, ws, err)
}

// SessionHasPermission checks a permission against the signed-in user's role.
func (h *ConsoleHandler) SessionHasPermission(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	perm := chi.URLParam(r, "permission")
	writeJSON(w, http.StatusOK, permissionResponse{Permission: perm, Granted: ws.Session.HasPermission(perm)})
}

// finishSession persists the session and reports the outcome of a
// network-backed session operation. A superseded operation changed nothing,
// so nothing is written.
func (h *ConsoleHandler) finishSession(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, err error) {
	if errors.Is(err, session.ErrSuperseded) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "superseded by a newer session operation"})
		return
	}
	h.writeThrough(r.Context(), ws, "session", ws.SaveSession)
	if err != nil {
		msg := ws.Session.State().Error
		if msg == "" {
			msg = err.Error()
		}
		writeJSON(w, sessionErrorStatus(err), map[string]string{"error": msg})
		return
	}
	writeJSON(w, http.StatusOK, ws.Session.State())
}

func sessionErrorStatus(err error) int {
	var apiErr *authclient.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNoRefreshToken),
		errors.Is(err, directory.ErrEmailRequired),
		errors.Is(err, directory.ErrWeakPassword),
		errors.Is(err, directory.ErrNameRequired):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotSignedIn),
		errors.Is(err, directory.ErrInvalidCredentials),
		errors.Is(err, directory.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, directory.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, directory.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
