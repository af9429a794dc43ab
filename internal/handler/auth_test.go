package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/staykit/pms/internal/auth"
	"github.com/staykit/pms/internal/directory"
	"github.com/staykit/pms/internal/enum"
	"github.com/staykit/pms/internal/handler"
	"github.com/staykit/pms/internal/session"
)

const testSecret = "test-secret"

// --- Mock directory ---

type mockDirectory struct {
	users     map[string]session.User // key: email
	passwords map[string]string
	loggedOut []string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users:     make(map[string]session.User),
		passwords: make(map[string]string),
	}
}

func (m *mockDirectory) addUser(u session.User, password string) {
	m.users[u.Email] = u
	m.passwords[u.Email] = password
}

func (m *mockDirectory) issue(u session.User) *session.AuthResult {
	access, _ := auth.GenerateToken(testSecret, u.ID, u.HotelID, u.Role)
	refresh, _ := auth.GenerateRefreshToken(testSecret, u.ID)
	return &session.AuthResult{User: u, AccessToken: access, RefreshToken: refresh}
}

func (m *mockDirectory) Login(_ context.Context, email, password string) (*session.AuthResult, error) {
	u, ok := m.users[email]
	if !ok || m.passwords[email] != password {
		return nil, directory.ErrInvalidCredentials
	}
	return m.issue(u), nil
}

func (m *mockDirectory) Register(_ context.Context, data session.RegisterData) (*session.AuthResult, error) {
	if _, ok := m.users[data.Email]; ok {
		return nil, directory.ErrEmailTaken
	}
	if len(data.Password) < 8 {
		return nil, directory.ErrWeakPassword
	}
	u := session.User{ID: uuid.New(), Email: data.Email, DisplayName: data.DisplayName, Role: enum.RoleGuest}
	m.addUser(u, data.Password)
	return m.issue(u), nil
}

func (m *mockDirectory) Refresh(_ context.Context, token string) (*session.AuthResult, error) {
	claims, err := auth.ValidateRefreshToken(testSecret, token)
	if err != nil {
		return nil, directory.ErrInvalidToken
	}
	for _, u := range m.users {
		if u.ID.String() == claims.Subject {
			return m.issue(u), nil
		}
	}
	return nil, directory.ErrInvalidToken
}

func (m *mockDirectory) User(_ context.Context, id uuid.UUID) (*session.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, directory.ErrUserNotFound
}

func (m *mockDirectory) UpdateProfile(ctx context.Context, id uuid.UUID, data session.ProfileUpdate) (*session.User, error) {
	u, err := m.User(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.DisplayName != nil {
		u.DisplayName = *data.DisplayName
	}
	m.users[u.Email] = *u
	return u, nil
}

func (m *mockDirectory) Logout(_ context.Context, token string) error {
	m.loggedOut = append(m.loggedOut, token)
	return nil
}

// --- Helpers ---

func makeTestUser() session.User {
	return session.User{
		ID:          uuid.New(),
		Email:       "desk@grand.test",
		DisplayName: "Front Desk",
		Role:        enum.RoleReceptionist,
		HotelID:     uuid.New(),
	}
}

func newAuthRouter(dir handler.AuthDirectory) chi.Router {
	h := handler.NewAuthHandler(dir, testSecret, nil, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, "POST", path, body, nil)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	dir := newMockDirectory()
	dir.addUser(makeTestUser(), "correct-password")
	r := newAuthRouter(dir)

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "desk@grand.test",
		"password": "correct-password",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["access_token"] == nil || resp["access_token"] == "" {
		t.Error("expected non-empty access_token")
	}
	if resp["refresh_token"] == nil || resp["refresh_token"] == "" {
		t.Error("expected non-empty refresh_token")
	}

	userResp, ok := resp["user"].(map[string]interface{})
	if !ok {
		t.Fatal("expected user object in response")
	}
	if userResp["email"] != "desk@grand.test" {
		t.Errorf("user email: got %v", userResp["email"])
	}
	if userResp["role"] != enum.RoleReceptionist {
		t.Errorf("user role: got %v", userResp["role"])
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	dir := newMockDirectory()
	dir.addUser(makeTestUser(), "correct-password")

	rr := postJSON(t, newAuthRouter(dir), "/auth/login", map[string]string{
		"email":    "desk@grand.test",
		"password": "wrong-password",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if resp := decodeResponse(t, rr); resp["error"] != "invalid credentials" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestLogin_MissingFields(t *testing.T) {
	rr := postJSON(t, newAuthRouter(newMockDirectory()), "/auth/login", map[string]string{
		"email": "desk@grand.test",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	calls := 0
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	r := chi.NewRouter()
	handler.NewAuthHandler(newMockDirectory(), testSecret, limit, nil).RegisterRoutes(r)

	rr := postJSON(t, r, "/auth/login", map[string]string{"email": "a", "password": "b"})
	if rr.Code != http.StatusTooManyRequests || calls != 1 {
		t.Errorf("status %d, limiter calls %d", rr.Code, calls)
	}

	// Refresh is not behind the limiter.
	rr = postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": "x"})
	if rr.Code != http.StatusUnauthorized || calls != 1 {
		t.Errorf("refresh: status %d, limiter calls %d", rr.Code, calls)
	}
}

// --- Register tests ---

func TestRegister(t *testing.T) {
	dir := newMockDirectory()
	r := newAuthRouter(dir)

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"email":        "guest@grand.test",
		"password":     "long-enough",
		"display_name": "Guest",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, r, "/auth/register", map[string]string{
		"email":        "guest@grand.test",
		"password":     "long-enough",
		"display_name": "Guest",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d, want %d", rr.Code, http.StatusConflict)
	}

	rr = postJSON(t, r, "/auth/register", map[string]string{
		"email":    "other@grand.test",
		"password": "short",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("weak password: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Refresh tests ---

func TestRefresh_ValidToken(t *testing.T) {
	dir := newMockDirectory()
	user := makeTestUser()
	dir.addUser(user, "pw")

	refresh, _ := auth.GenerateRefreshToken(testSecret, user.ID)
	rr := postJSON(t, newAuthRouter(dir), "/auth/refresh", map[string]string{"refresh_token": refresh})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeResponse(t, rr); resp["access_token"] == "" {
		t.Error("expected access_token")
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	rr := postJSON(t, newAuthRouter(newMockDirectory()), "/auth/refresh", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Me / profile / logout tests ---

func TestMe(t *testing.T) {
	dir := newMockDirectory()
	user := makeTestUser()
	dir.addUser(user, "pw")
	r := newAuthRouter(dir)

	rr := doJSON(t, r, "GET", "/auth/me", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d", rr.Code)
	}

	token, _ := auth.GenerateToken(testSecret, user.ID, user.HotelID, user.Role)
	rr = doJSON(t, r, "GET", "/auth/me", nil, map[string]string{"Authorization": "Bearer " + token})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeResponse(t, rr); resp["email"] != user.Email {
		t.Errorf("email: got %v", resp["email"])
	}
}

func TestUpdateProfile(t *testing.T) {
	dir := newMockDirectory()
	user := makeTestUser()
	dir.addUser(user, "pw")
	token, _ := auth.GenerateToken(testSecret, user.ID, user.HotelID, user.Role)

	rr := doJSON(t, newAuthRouter(dir), "PATCH", "/auth/profile",
		map[string]string{"display_name": "Night Desk"},
		map[string]string{"Authorization": "Bearer " + token})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeResponse(t, rr); resp["display_name"] != "Night Desk" {
		t.Errorf("display_name: got %v", resp["display_name"])
	}
}

func TestLogout(t *testing.T) {
	dir := newMockDirectory()
	rr := postJSON(t, newAuthRouter(dir), "/auth/logout", map[string]string{"refresh_token": "tok"})

	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(dir.loggedOut) != 1 || dir.loggedOut[0] != "tok" {
		t.Errorf("logged out: %v", dir.loggedOut)
	}
}
