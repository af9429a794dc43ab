package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/staykit/pms/internal/auth"
	"github.com/staykit/pms/internal/enum"
	"go.uber.org/zap"
)

// Errors returned by the session store.
var (
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrSuperseded     = errors.New("superseded by a newer session operation")
	ErrNotSignedIn    = errors.New("not signed in")

	errNoUser = errors.New("auth service returned no user")
)

// UserError is an error whose message can be shown to the console user.
// Any other failure is reported with a generic message.
type UserError interface {
	error
	UserMessage() string
}

// User is the signed-in staff identity.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	HotelID     uuid.UUID `json:"hotel_id"`
	Phone       string    `json:"phone,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterData struct {
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone"`
	HotelID     uuid.UUID `json:"hotel_id"`
}

// ProfileUpdate carries only the fields being changed.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type AuthResult struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService is the auth collaborator. GetCurrentUser, UpdateProfile and
// Logout authenticate with the tokens last handed over through SetTokens.
type AuthService interface {
	Login(ctx context.Context, creds Credentials) (*AuthResult, error)
	Register(ctx context.Context, data RegisterData) (*AuthResult, error)
	GetCurrentUser(ctx context.Context) (*User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error)
	UpdateProfile(ctx context.Context, data ProfileUpdate) (*User, error)
	Logout(ctx context.Context) error
	SetTokens(accessToken, refreshToken string)
	SetUser(user *User)
}

// State is a read-only view of the store.
type State struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Persisted is the durable projection of the store. Status and error are
// re-derived on startup and never persisted.
type Persisted struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store tracks the authenticated identity of one console client.
//
// Network calls run outside the lock. Every operation that replaces the
// identity claims a new generation; a continuation whose generation is no
// longer current drops its result and returns ErrSuperseded.
type Store struct {
	svc    AuthService
	logger *zap.Logger

	mu           sync.Mutex
	user         *User
	accessToken  string
	refreshToken string
	status       string
	errMsg       string
	gen          uint64
}

// NewStore creates an idle store backed by svc.
func NewStore(svc AuthService, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{svc: svc, logger: logger, status: enum.SessionStatusIdle}
}

// Initialize resolves the restored tokens into a terminal status. It never fails.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	access, refresh := s.accessToken, s.refreshToken
	if access == "" {
		s.gen++
		s.resetLocked()
		s.mu.Unlock()
		return
	}
	ticket := s.claimLocked()
	s.mu.Unlock()

	s.svc.SetTokens(access, refresh)
	user, err := s.svc.GetCurrentUser(ctx)
	if err == nil && user == nil {
		err = errNoUser
	}
	if err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != ticket {
			return
		}
		s.user = user
		s.status = enum.SessionStatusAuthenticated
		s.svc.SetUser(user)
		return
	}
	s.logger.Debug("session: current user lookup failed", zap.Error(err))

	if refresh == "" {
		s.resetIfCurrent(ticket)
		return
	}

	res, err := s.svc.RefreshToken(ctx, refresh)
	if err != nil {
		s.logger.Info("session: refresh during initialize failed", zap.Error(err))
		s.resetIfCurrent(ticket)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != ticket {
		return
	}
	s.commitLocked(res)
}

// Login authenticates with credentials. Failures are recorded in the error
// field and returned to the caller.
func (s *Store) Login(ctx context.Context, creds Credentials) (*User, error) {
	s.mu.Lock()
	ticket := s.claimLocked()
	s.mu.Unlock()

	res, err := s.svc.Login(ctx, creds)
	if err == nil && res == nil {
		err = errNoUser
	}
	return s.finishSignIn(ticket, res, err, "login failed")
}

// Register creates an account and signs it in; same contract as Login.
func (s *Store) Register(ctx context.Context, data RegisterData) (*User, error) {
	s.mu.Lock()
	ticket := s.claimLocked()
	s.mu.Unlock()

	res, err := s.svc.Register(ctx, data)
	if err == nil && res == nil {
		err = errNoUser
	}
	return s.finishSignIn(ticket, res, err, "registration failed")
}

func (s *Store) finishSignIn(ticket uint64, res *AuthResult, err error, fallback string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != ticket {
		return nil, ErrSuperseded
	}
	if err != nil {
		s.resetLocked()
		s.errMsg = errorMessage(err, fallback)
		return nil, err
	}
	s.commitLocked(res)
	u := *s.user
	return &u, nil
}

// Logout signs out remotely on a best-effort basis and always clears local state.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	if err := s.svc.Logout(ctx); err != nil {
		s.logger.Debug("session: remote logout failed", zap.Error(err))
	}

	s.mu.Lock()
	s.gen++
	s.resetLocked()
	s.mu.Unlock()
	s.svc.SetTokens("", "")
	s.svc.SetUser(nil)
}

// RefreshSession exchanges the refresh token for a new token pair. On failure
// the session is cleared and the error propagated.
func (s *Store) RefreshSession(ctx context.Context) (*User, error) {
	s.mu.Lock()
	refresh := s.refreshToken
	if refresh == "" {
		s.mu.Unlock()
		return nil, ErrNoRefreshToken
	}
	s.gen++
	ticket := s.gen
	s.mu.Unlock()

	res, err := s.svc.RefreshToken(ctx, refresh)
	if err == nil && res == nil {
		err = errNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != ticket {
		return nil, ErrSuperseded
	}
	if err != nil {
		s.resetLocked()
		s.errMsg = errorMessage(err, "session expired")
		return nil, err
	}
	s.commitLocked(res)
	u := *s.user
	return &u, nil
}

// UpdateProfile replaces the user record with the collaborator's response.
func (s *Store) UpdateProfile(ctx context.Context, data ProfileUpdate) (*User, error) {
	s.mu.Lock()
	if s.status != enum.SessionStatusAuthenticated {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	ticket := s.gen
	s.mu.Unlock()

	user, err := s.svc.UpdateProfile(ctx, data)
	if err == nil && user == nil {
		err = errNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != ticket || s.status != enum.SessionStatusAuthenticated {
		return nil, ErrSuperseded
	}
	if err != nil {
		s.errMsg = errorMessage(err, "profile update failed")
		return nil, err
	}
	u := *user
	s.user = &u
	s.errMsg = ""
	s.svc.SetUser(&u)
	out := u
	return &out, nil
}

// HasPermission checks the current user's role against the static role table.
func (s *Store) HasPermission(permission string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return false
	}
	return auth.HasPermission(s.user.Role, permission)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		Status:       s.status,
		Error:        s.errMsg,
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

func (s *Store) Snapshot() Persisted {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Persisted{AccessToken: s.accessToken, RefreshToken: s.refreshToken}
	if s.user != nil {
		u := *s.user
		p.User = &u
	}
	return p
}

// Restore loads a persisted projection. Status stays as is until Initialize runs.
func (s *Store) Restore(p Persisted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = p.User
	s.accessToken = p.AccessToken
	s.refreshToken = p.RefreshToken
}

func (s *Store) claimLocked() uint64 {
	s.gen++
	s.status = enum.SessionStatusLoading
	s.errMsg = ""
	return s.gen
}

func (s *Store) commitLocked(res *AuthResult) {
	user := res.User
	s.user = &user
	s.accessToken = res.AccessToken
	s.refreshToken = res.RefreshToken
	s.status = enum.SessionStatusAuthenticated
	s.errMsg = ""
	s.svc.SetTokens(res.AccessToken, res.RefreshToken)
	s.svc.SetUser(&user)
}

func (s *Store) resetLocked() {
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.status = enum.SessionStatusUnauthenticated
	s.errMsg = ""
}

func (s *Store) resetIfCurrent(ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == ticket {
		s.resetLocked()
	}
}

// errorMessage is the text recorded in State.Error. Only UserError messages
// are passed through; anything else may carry infrastructure detail.
func errorMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	}
	var ue UserError
	if errors.As(err, &ue) {
		if msg := ue.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
