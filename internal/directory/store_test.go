package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/staykit/pms/internal/session"
)

// --- Mock DBTX ---

type mockRow struct {
	acct Account
	err  error
}

func (r mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*uuid.UUID)) = r.acct.ID
	*(dest[1].(*string)) = r.acct.Email
	*(dest[2].(*string)) = r.acct.PasswordHash
	*(dest[3].(*string)) = r.acct.DisplayName
	*(dest[4].(*string)) = r.acct.Role
	if r.acct.HotelID != uuid.Nil {
		id := r.acct.HotelID
		*(dest[5].(**uuid.UUID)) = &id
	}
	*(dest[6].(*string)) = r.acct.Phone
	*(dest[7].(*string)) = r.acct.AvatarURL
	*(dest[8].(*time.Time)) = r.acct.CreatedAt
	return nil
}

type mockDB struct {
	row   mockRow
	args  []any
	execs []string
}

func (m *mockDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.args = args
	return m.row
}

func TestPostgresUsers_GetUserByEmail(t *testing.T) {
	hotel := uuid.New()
	db := &mockDB{row: mockRow{acct: Account{
		User: session.User{ID: uuid.New(), Email: "desk@grand.test", Role: "receptionist", HotelID: hotel},
	}}}
	users := NewPostgresUsers(db)

	a, err := users.GetUserByEmail(context.Background(), " Desk@Grand.test")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.HotelID != hotel {
		t.Errorf("hotel: %s", a.HotelID)
	}
	if db.args[0] != "desk@grand.test" {
		t.Errorf("email not normalized: %v", db.args[0])
	}
}

func TestPostgresUsers_NotFound(t *testing.T) {
	users := NewPostgresUsers(&mockDB{row: mockRow{err: pgx.ErrNoRows}})
	if _, err := users.GetUserByID(context.Background(), uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestPostgresUsers_CreateDuplicate(t *testing.T) {
	users := NewPostgresUsers(&mockDB{row: mockRow{err: &pgconn.PgError{Code: "23505"}}})
	_, err := users.CreateUser(context.Background(), Account{User: session.User{Email: "x@y.z"}})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("got %v", err)
	}
}

func TestPostgresUsers_CreatePassesNullHotel(t *testing.T) {
	db := &mockDB{row: mockRow{acct: Account{User: session.User{ID: uuid.New()}}}}
	_, _ = NewPostgresUsers(db).CreateUser(context.Background(), Account{User: session.User{Email: "x@y.z"}})
	if hid, ok := db.args[4].(*uuid.UUID); !ok || hid != nil {
		t.Errorf("hotel arg: %#v", db.args[4])
	}
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryUsers()

	a, err := m.CreateUser(ctx, Account{User: session.User{Email: "Chef@Grand.test", DisplayName: "Chef"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == uuid.Nil || a.Email != "chef@grand.test" {
		t.Errorf("created: %+v", a)
	}
	if _, err := m.CreateUser(ctx, Account{User: session.User{Email: "chef@grand.test"}}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate: %v", err)
	}
	a.DisplayName = "Head Chef"
	if _, err := m.UpdateUser(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := m.GetUserByID(ctx, a.ID)
	if got.DisplayName != "Head Chef" {
		t.Errorf("display name: %s", got.DisplayName)
	}
	if _, err := m.UpdateUser(ctx, Account{User: session.User{ID: uuid.New()}}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("update unknown: %v", err)
	}
}
