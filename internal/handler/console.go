package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/staykit/pms/internal/cart"
	mw "github.com/staykit/pms/internal/middleware"
	"github.com/staykit/pms/internal/tracking"
	"github.com/staykit/pms/internal/workspace"
	"go.uber.org/zap"
)

// Workspaces resolves a console client ID to its workspace.
// Satisfied by *workspace.Manager; narrow interface for testability.
type Workspaces interface {
	Get(ctx context.Context, clientID string) (*workspace.Workspace, error)
}

// OrderTracker defines the order-tracking methods used by handlers.
// Satisfied by *tracking.Tracker.
type OrderTracker interface {
	Place(draft cart.State) (tracking.Order, error)
	Get(id uuid.UUID) (tracking.Order, error)
	ListByHotel(hotelID, status string) []tracking.Order
	UpdateStatus(id uuid.UUID, status string) (tracking.Order, error)
}

// ConsoleHandler exposes the session, booking and cart stores of the
// caller's workspace. Every mutation is written through to storage before
// the response is sent.
type ConsoleHandler struct {
	spaces Workspaces
	orders OrderTracker
	logger *zap.Logger
}

// NewConsoleHandler creates a new ConsoleHandler.
func NewConsoleHandler(spaces Workspaces, orders OrderTracker, logger *zap.Logger) *ConsoleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleHandler{spaces: spaces, orders: orders, logger: logger}
}

// RegisterRoutes registers console endpoints on the given Chi router.
// The router must run RequireClientID first.
func (h *ConsoleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/session", h.registerSessionRoutes)
	r.Route("/booking", h.registerBookingRoutes)
	r.Route("/cart", h.registerCartRoutes)
}

// workspace loads the caller's workspace, writing an error response on failure.
func (h *ConsoleHandler) workspace(w http.ResponseWriter, r *http.Request) *workspace.Workspace {
	clientID := mw.ClientIDFromContext(r.Context())
	ws, err := h.spaces.Get(r.Context(), clientID)
	if err != nil {
		writeInternalError(w, h.logger.With(zap.String("client_id", clientID)), "load workspace", err)
		return nil
	}
	return ws
}

// writeThrough saves one store's projection. A storage failure leaves the
// in-memory state authoritative, so it is logged rather than returned.
func (h *ConsoleHandler) writeThrough(ctx context.Context, ws *workspace.Workspace, store string, save func(context.Context) error) {
	if err := save(context.WithoutCancel(ctx)); err != nil {
		h.logger.Warn("write-through failed",
			zap.String("client_id", ws.ClientID),
			zap.String("store", store),
			zap.Error(err),
		)
	}
}
