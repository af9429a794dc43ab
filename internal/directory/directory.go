// Package directory is the staff user directory: it verifies credentials,
// issues token pairs and serves profile reads and updates.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/staykit/pms/internal/auth"
	"github.com/staykit/pms/internal/enum"
	"github.com/staykit/pms/internal/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Errors returned by the directory. Their text is safe to show to the
// console user.
var (
	ErrInvalidCredentials error = userError("invalid credentials")
	ErrEmailTaken         error = userError("email already registered")
	ErrUserNotFound       error = userError("user not found")
	ErrInvalidToken       error = userError("invalid or expired token")
	ErrEmailRequired      error = userError("email is required")
	ErrWeakPassword       error = userError("password must be at least 8 characters")
	ErrNameRequired       error = userError("display name is required")
)

type userError string

func (e userError) Error() string       { return string(e) }
func (e userError) UserMessage() string { return string(e) }

var _ session.UserError = userError("")

const minPasswordLength = 8

// Directory authenticates staff users against a UserStore.
type Directory struct {
	users    UserStore
	secret   string
	logger   *zap.Logger
	hashCost int

	mu      sync.Mutex
	revoked map[string]time.Time // refresh token ID -> token expiry
}

func New(users UserStore, jwtSecret string, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		users:    users,
		secret:   jwtSecret,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		revoked:  make(map[string]time.Time),
	}
}

// HashPassword hashes a plaintext password with the default bcrypt cost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Login verifies email and password and issues a token pair.
func (d *Directory) Login(ctx context.Context, email, password string) (*session.AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := d.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return d.issue(acct.User)
}

// Register creates a guest account and signs it in.
func (d *Directory) Register(ctx context.Context, data session.RegisterData) (*session.AuthResult, error) {
	switch {
	case normalizeEmail(data.Email) == "":
		return nil, ErrEmailRequired
	case len(data.Password) < minPasswordLength:
		return nil, ErrWeakPassword
	case strings.TrimSpace(data.DisplayName) == "":
		return nil, ErrNameRequired
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(data.Password), d.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct, err := d.users.CreateUser(ctx, Account{
		User: session.User{
			Email:       data.Email,
			DisplayName: strings.TrimSpace(data.DisplayName),
			Role:        enum.RoleGuest,
			HotelID:     data.HotelID,
			Phone:       data.Phone,
		},
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	d.logger.Info("user registered", zap.String("user_id", acct.ID.String()))
	return d.issue(acct.User)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked so that it cannot be replayed.
func (d *Directory) Refresh(ctx context.Context, refreshToken string) (*session.AuthResult, error) {
	claims, err := auth.ValidateRefreshToken(d.secret, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if d.isRevoked(claims.ID) {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	acct, err := d.users.GetUserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if claims.ExpiresAt != nil {
		d.revoke(claims.ID, claims.ExpiresAt.Time)
	}
	return d.issue(acct.User)
}

// CurrentUser resolves an access token to its user record.
func (d *Directory) CurrentUser(ctx context.Context, accessToken string) (*session.User, error) {
	claims, err := auth.ValidateToken(d.secret, accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return d.User(ctx, claims.UserID)
}

// User loads a user by ID.
func (d *Directory) User(ctx context.Context, id uuid.UUID) (*session.User, error) {
	acct, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u := acct.User
	return &u, nil
}

// UpdateProfile applies the non-nil fields of data to the user.
func (d *Directory) UpdateProfile(ctx context.Context, id uuid.UUID, data session.ProfileUpdate) (*session.User, error) {
	acct, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.DisplayName != nil {
		name := strings.TrimSpace(*data.DisplayName)
		if name == "" {
			return nil, ErrNameRequired
		}
		acct.DisplayName = name
	}
	if data.Phone != nil {
		acct.Phone = *data.Phone
	}
	if data.AvatarURL != nil {
		acct.AvatarURL = *data.AvatarURL
	}
	acct, err = d.users.UpdateUser(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	u := acct.User
	return &u, nil
}

// Logout revokes the refresh token. An invalid token is not an error: the
// caller is signing out either way.
func (d *Directory) Logout(_ context.Context, refreshToken string) error {
	claims, err := auth.ValidateRefreshToken(d.secret, refreshToken)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	d.revoke(claims.ID, claims.ExpiresAt.Time)
	return nil
}

// PruneRevoked forgets revoked token IDs whose tokens have expired anyway.
func (d *Directory) PruneRevoked(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, exp := range d.revoked {
		if !now.Before(exp) {
			delete(d.revoked, id)
			n++
		}
	}
	return n
}

func (d *Directory) issue(user session.User) (*session.AuthResult, error) {
	access, err := auth.GenerateToken(d.secret, user.ID, user.HotelID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := auth.GenerateRefreshToken(d.secret, user.ID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &session.AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (d *Directory) revoke(id string, exp time.Time) {
	if id == "" {
		return
	}
	d.mu.Lock()
	d.revoked[id] = exp
	d.mu.Unlock()
}

func (d *Directory) isRevoked(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[id]
	return ok
}
