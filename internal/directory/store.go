package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/staykit/pms/internal/session"
)

// Account is a staff user together with its password hash.
type Account struct {
	session.User
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore defines the persistence methods needed by the directory.
// Satisfied by *MemoryUsers and *PostgresUsers; narrow interface for testability.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (Account, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (Account, error)
	CreateUser(ctx context.Context, a Account) (Account, error)
	UpdateUser(ctx context.Context, a Account) (Account, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- In-memory store ---

// MemoryUsers keeps accounts in process memory. Used for development and
// tests when no database is configured.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]Account
	byEmail map[string]uuid.UUID
}

func NewMemoryUsers(seed ...Account) *MemoryUsers {
	m := &MemoryUsers{
		byID:    make(map[uuid.UUID]Account),
		byEmail: make(map[string]uuid.UUID),
	}
	for _, a := range seed {
		_, _ = m.CreateUser(context.Background(), a)
	}
	return m
}

func (m *MemoryUsers) GetUserByEmail(_ context.Context, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryUsers) GetUserByID(_ context.Context, id uuid.UUID) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return a, nil
}

func (m *MemoryUsers) CreateUser(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Email = normalizeEmail(a.Email)
	if _, taken := m.byEmail[a.Email]; taken {
		return Account{}, ErrEmailTaken
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.byID[a.ID] = a
	m.byEmail[a.Email] = a.ID
	return a, nil
}

func (m *MemoryUsers) UpdateUser(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; !ok {
		return Account{}, ErrUserNotFound
	}
	m.byID[a.ID] = a
	return a, nil
}

// --- PostgreSQL store ---

// UsersSchema creates the table used by PostgresUsers.
const UsersSchema = `CREATE TABLE IF NOT EXISTS staff_users (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email           TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	display_name    TEXT NOT NULL,
	role            TEXT NOT NULL,
	hotel_id        UUID,
	phone           TEXT NOT NULL DEFAULT '',
	avatar_url      TEXT NOT NULL DEFAULT '',
	is_active       BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const userColumns = `id, email, hashed_password, display_name, role, hotel_id, phone, avatar_url, created_at`

const (
	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM staff_users WHERE email = $1 AND is_active = true`
	getUserByIDSQL    = `SELECT ` + userColumns + ` FROM staff_users WHERE id = $1 AND is_active = true`

	createUserSQL = `INSERT INTO staff_users (email, hashed_password, display_name, role, hotel_id, phone, avatar_url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

	updateUserSQL = `UPDATE staff_users
SET display_name = $2, phone = $3, avatar_url = $4, hashed_password = $5
WHERE id = $1 AND is_active = true
RETURNING ` + userColumns
)

const uniqueViolation = "23505"

// DBTX is the subset of pgx used by PostgresUsers.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresUsers stores accounts in the staff_users table.
type PostgresUsers struct {
	db DBTX
}

func NewPostgresUsers(db DBTX) *PostgresUsers {
	return &PostgresUsers{db: db}
}

// Migrate creates the staff_users table if needed.
func (p *PostgresUsers) Migrate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, UsersSchema)
	return err
}

func (p *PostgresUsers) GetUserByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(p.db.QueryRow(ctx, getUserByEmailSQL, normalizeEmail(email)))
}

func (p *PostgresUsers) GetUserByID(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(p.db.QueryRow(ctx, getUserByIDSQL, id))
}

func (p *PostgresUsers) CreateUser(ctx context.Context, a Account) (Account, error) {
	row := p.db.QueryRow(ctx, createUserSQL,
		normalizeEmail(a.Email), a.PasswordHash, a.DisplayName, a.Role, nullableID(a.HotelID), a.Phone, a.AvatarURL)
	created, err := scanAccount(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return Account{}, ErrEmailTaken
	}
	return created, err
}

func (p *PostgresUsers) UpdateUser(ctx context.Context, a Account) (Account, error) {
	return scanAccount(p.db.QueryRow(ctx, updateUserSQL, a.ID, a.DisplayName, a.Phone, a.AvatarURL, a.PasswordHash))
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a       Account
		hotelID *uuid.UUID
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Role, &hotelID, &a.Phone, &a.AvatarURL, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrUserNotFound
	}
	if err != nil {
		return Account{}, err
	}
	if hotelID != nil {
		a.HotelID = *hotelID
	}
	return a, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
