package persist

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- Mock DBTX ---

type execCall struct {
	sql  string
	args []any
}

type mockRow struct {
	blob []byte
	err  error
}

func (r mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.blob
	return nil
}

type mockDB struct {
	execs   []execCall
	execTag pgconn.CommandTag
	execErr error
	row     mockRow
	queries []string
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return m.execTag, m.execErr
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.queries = append(m.queries, sql)
	return m.row
}

func TestPostgresStorage_GetFound(t *testing.T) {
	db := &mockDB{row: mockRow{blob: []byte(`{"a":1}`)}}
	s := NewPostgresStorage(db, time.Hour)

	blob, ok, err := s.Get(context.Background(), "k")
	if err != nil || !ok || string(blob) != `{"a":1}` {
		t.Fatalf("get: blob=%s ok=%v err=%v", blob, ok, err)
	}
	if !strings.Contains(db.queries[0], "expires_at > now()") {
		t.Errorf("query must filter expired rows: %s", db.queries[0])
	}
}

func TestPostgresStorage_GetMissing(t *testing.T) {
	db := &mockDB{row: mockRow{err: pgx.ErrNoRows}}
	s := NewPostgresStorage(db, time.Hour)

	_, ok, err := s.Get(context.Background(), "k")
	if ok || err != nil {
		t.Fatalf("missing row: ok=%v err=%v", ok, err)
	}
}

func TestPostgresStorage_GetError(t *testing.T) {
	db := &mockDB{row: mockRow{err: errors.New("connection reset")}}
	s := NewPostgresStorage(db, time.Hour)

	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresStorage_SetScopes(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &mockDB{}
	s := NewPostgresStorage(db, 2*time.Hour)
	s.now = func() time.Time { return now }

	if err := s.Set(context.Background(), "durable", []byte(`{}`), Durable); err != nil {
		t.Fatalf("set durable: %v", err)
	}
	if err := s.Set(context.Background(), "session", []byte(`{}`), Session); err != nil {
		t.Fatalf("set session: %v", err)
	}

	if exp := db.execs[0].args[2].(*time.Time); exp != nil {
		t.Errorf("durable expiry: got %v, want nil", exp)
	}
	exp := db.execs[1].args[2].(*time.Time)
	if exp == nil || !exp.Equal(now.Add(2*time.Hour)) {
		t.Errorf("session expiry: got %v", exp)
	}
}

func TestPostgresStorage_Sweep(t *testing.T) {
	db := &mockDB{execTag: pgconn.NewCommandTag("DELETE 4")}
	s := NewPostgresStorage(db, time.Hour)

	n, err := s.Sweep(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
}

func TestPostgresStorage_Migrate(t *testing.T) {
	db := &mockDB{}
	s := NewPostgresStorage(db, time.Hour)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS console_state") {
		t.Errorf("migrate sql: %s", db.execs[0].sql)
	}
}
