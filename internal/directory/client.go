package directory

import (
	"context"
	"sync"

	"github.com/staykit/pms/internal/auth"
	"github.com/staykit/pms/internal/session"
)

// Client adapts a Directory to session.AuthService for in-process use.
// It holds the tokens handed over by the session store.
type Client struct {
	dir *Directory

	mu      sync.Mutex
	access  string
	refresh string
	user    *session.User
}

func NewClient(dir *Directory) *Client {
	return &Client{dir: dir}
}

func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.AuthResult, error) {
	return c.dir.Login(ctx, creds.Email, creds.Password)
}

func (c *Client) Register(ctx context.Context, data session.RegisterData) (*session.AuthResult, error) {
	return c.dir.Register(ctx, data)
}

func (c *Client) GetCurrentUser(ctx context.Context) (*session.User, error) {
	access, _ := c.tokens()
	return c.dir.CurrentUser(ctx, access)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*session.AuthResult, error) {
	return c.dir.Refresh(ctx, refreshToken)
}

func (c *Client) UpdateProfile(ctx context.Context, data session.ProfileUpdate) (*session.User, error) {
	access, _ := c.tokens()
	claims, err := auth.ValidateToken(c.dir.secret, access)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return c.dir.UpdateProfile(ctx, claims.UserID, data)
}

func (c *Client) Logout(ctx context.Context) error {
	_, refresh := c.tokens()
	return c.dir.Logout(ctx, refresh)
}

func (c *Client) SetTokens(accessToken, refreshToken string) {
	c.mu.Lock()
	c.access, c.refresh = accessToken, refreshToken
	c.mu.Unlock()
}

func (c *Client) SetUser(user *session.User) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
}

func (c *Client) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh
}

// User returns the user last handed over by the session store.
func (c *Client) User() *session.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}
