// Package workspace holds the per-client console state: one session store,
// one booking flow and one cart for each console client ID.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/staykit/pms/internal/booking"
	"github.com/staykit/pms/internal/cart"
	"github.com/staykit/pms/internal/persist"
	"github.com/staykit/pms/internal/session"
	"go.uber.org/zap"
)

// Workspace is the state of one console client.
type Workspace struct {
	ClientID string
	Session  *session.Store
	Booking  *booking.Flow
	Cart     *cart.Cart

	storage persist.Storage
	saveMu  sync.Mutex
}

// SaveSession writes the session projection through to storage.
func (w *Workspace) SaveSession(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	return persist.Save(ctx, w.storage, persist.Key(w.ClientID, persist.SessionKey), persist.Durable, w.Session.Snapshot())
}

// SaveBooking writes the booking flow through to storage. The blob is
// session scoped and expires when the client goes idle.
func (w *Workspace) SaveBooking(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	return persist.Save(ctx, w.storage, persist.Key(w.ClientID, persist.BookingKey), persist.Session, w.Booking.Snapshot())
}

func (w *Workspace) SaveCart(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	return persist.Save(ctx, w.storage, persist.Key(w.ClientID, persist.CartKey), persist.Durable, w.Cart.Snapshot())
}

type entry struct {
	ws       *Workspace
	err      error
	ready    chan struct{}
	lastSeen time.Time
}

// Manager creates workspaces on first use and restores their persisted
// state exactly once.
type Manager struct {
	storage persist.Storage
	newAuth func() session.AuthService
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	spaces map[string]*entry
}

// NewManager returns a manager backed by storage. newAuth is called once per
// workspace so that each session store gets its own auth collaborator.
func NewManager(storage persist.Storage, newAuth func() session.AuthService, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		storage: storage,
		newAuth: newAuth,
		logger:  logger,
		now:     time.Now,
		spaces:  make(map[string]*entry),
	}
}

// Get returns the workspace for clientID, restoring it from storage on
// first access. Concurrent first calls share one restore.
func (m *Manager) Get(ctx context.Context, clientID string) (*Workspace, error) {
	m.mu.Lock()
	if e, ok := m.spaces[clientID]; ok {
		e.lastSeen = m.now()
		m.mu.Unlock()
		<-e.ready
		return e.ws, e.err
	}
	e := &entry{ready: make(chan struct{}), lastSeen: m.now()}
	m.spaces[clientID] = e
	m.mu.Unlock()

	e.ws, e.err = m.restore(ctx, clientID)
	if e.err != nil {
		m.mu.Lock()
		if m.spaces[clientID] == e {
			delete(m.spaces, clientID)
		}
		m.mu.Unlock()
	}
	close(e.ready)
	return e.ws, e.err
}

// Evict drops every workspace not accessed within idle and returns how
// many were dropped. Persisted blobs are left alone.
func (m *Manager) Evict(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.spaces {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.lastSeen.Before(cutoff) {
			delete(m.spaces, id)
			n++
		}
	}
	return n
}

// Len reports how many workspaces are held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces)
}

func (m *Manager) restore(ctx context.Context, clientID string) (*Workspace, error) {
	ws := &Workspace{
		ClientID: clientID,
		Session:  session.NewStore(m.newAuth(), m.logger.With(zap.String("client_id", clientID))),
		Booking:  booking.NewFlow(),
		Cart:     cart.New(),
		storage:  m.storage,
	}

	sess, ok, err := loadBlob[session.Persisted](ctx, m, clientID, persist.SessionKey)
	if err != nil {
		return nil, err
	}
	if ok {
		ws.Session.Restore(sess)
	}

	flow, ok, err := loadBlob[booking.State](ctx, m, clientID, persist.BookingKey)
	if err != nil {
		return nil, err
	}
	if ok {
		ws.Booking.Restore(flow)
	}

	c, ok, err := loadBlob[cart.State](ctx, m, clientID, persist.CartKey)
	if err != nil {
		return nil, err
	}
	if ok {
		ws.Cart.Restore(c)
	}

	m.logger.Debug("workspace restored", zap.String("client_id", clientID))
	return ws, nil
}

// loadBlob reads one projection. A malformed blob is deleted and reported
// as missing so the store keeps its defaults.
func loadBlob[T any](ctx context.Context, m *Manager, clientID, name string) (T, bool, error) {
	key := persist.Key(clientID, name)
	v, ok, err := persist.Load[T](ctx, m.storage, key)
	if errors.Is(err, persist.ErrMalformed) {
		m.logger.Warn("discarding malformed blob", zap.String("key", key), zap.Error(err))
		if derr := m.storage.Delete(ctx, key); derr != nil {
			m.logger.Warn("delete malformed blob", zap.String("key", key), zap.Error(derr))
		}
		var zero T
		return zero, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("restore %s: %w", name, err)
	}
	return v, ok, nil
}
