package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/staykit/pms/internal/enum"
	mw "github.com/staykit/pms/internal/middleware"
	"github.com/staykit/pms/internal/tracking"
	"github.com/staykit/pms/internal/ws"
	"go.uber.org/zap"
)

// OrderHandler serves the guest tracking view and the staff order queue.
type OrderHandler struct {
	orders    OrderTracker
	hub       *ws.Hub
	jwtSecret string
	logger    *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders OrderTracker, hub *ws.Hub, jwtSecret string, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{orders: orders, hub: hub, jwtSecret: jwtSecret, logger: logger}
}

// RegisterPublicRoutes registers the guest-facing tracking endpoints. The
// order ID is the guest's capability.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/orders/{id}", h.Get)
	r.Get("/ws/orders/{id}", h.Subscribe)
	r.Get("/ws/hotels/{hid}/orders", h.SubscribeHotel)
}

// RegisterStaffRoutes registers staff endpoints. The router must run
// Authenticate first.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireHotel)
		r.With(mw.RequirePermission("orders:read")).Get("/hotels/{hid}/orders", h.List)
	})
	r.With(mw.RequirePermission("orders:write")).Patch("/orders/{id}/status", h.UpdateStatus)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Get returns one order for the tracking view.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	order, err := h.orders.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// List returns a hotel's orders, optionally filtered by ?status=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !tracking.IsValidStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}
	writeJSON(w, http.StatusOK, h.orders.ListByHotel(chi.URLParam(r, "hid"), status))
}

// UpdateStatus moves an order along pending → confirmed → preparing → ready
// → delivered, or cancels it.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	existing, err := h.orders.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	claims := mw.ClaimsFromContext(r.Context())
	if claims.Role != enum.RoleSuperadmin && claims.HotelID.String() != existing.HotelID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this hotel"})
		return
	}

	order, err := h.orders.UpdateStatus(id, req.Status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, order)
	case errors.Is(err, tracking.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, tracking.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, tracking.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	default:
		writeInternalError(w, h.logger, "update order status", err)
	}
}

// Subscribe streams updates for one order to a guest.
// Endpoint: WS /ws/orders/{id}
func (h *OrderHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	if _, err := h.orders.Get(id); err != nil {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	ws.ServeTopic(h.hub, ws.OrderTopic(id.String()), w, r)
}

// SubscribeHotel streams a hotel's order feed to staff (auth via ?token=).
func (h *OrderHandler) SubscribeHotel(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(h.hub, h.jwtSecret, w, r)
}
