package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staykit/pms/internal/cart"
	"github.com/staykit/pms/internal/workspace"
	"go.uber.org/zap"
)

func (h *ConsoleHandler) registerCartRoutes(r chi.Router) {
	r.Get("/", h.CartState)
	r.Delete("/", h.CartClear)
	r.Put("/hotel", h.CartSetHotel)
	r.Put("/room", h.CartSetRoom)
	r.Put("/table", h.CartSetTable)
	r.Put("/order-type", h.CartSetOrderType)
	r.Patch("/guest", h.CartSetGuestInfo)
	r.Put("/instructions", h.CartSetInstructions)
	r.Post("/items", h.CartAddItem)
	r.Patch("/items/{lineID}", h.CartUpdateQuantity)
	r.Delete("/items/{lineID}", h.CartRemoveItem)
	r.Post("/checkout", h.CartCheckout)
}

// --- Request / Response types ---

type cartResponse struct {
	cart.State
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

type cartHotelRequest struct {
	HotelID string `json:"hotel_id"`
}

type roomRequest struct {
	RoomNumber string `json:"room_number"`
}

type tableRequest struct {
	TableNumber string `json:"table_number"`
}

type orderTypeRequest struct {
	OrderType string `json:"order_type"`
}

type instructionsRequest struct {
	SpecialInstructions string `json:"special_instructions"`
}

type addItemRequest struct {
	MenuItem            cart.MenuItem        `json:"menu_item"`
	Quantity            int                  `json:"quantity"`
	Customizations      []cart.Customization `json:"customizations"`
	Addons              []cart.Addon         `json:"addons"`
	SpecialInstructions string               `json:"special_instructions"`
}

type addItemResponse struct {
	Line cart.Line    `json:"line"`
	Cart cartResponse `json:"cart"`
}

// --- Handlers ---

func (h *ConsoleHandler) CartState(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	writeJSON(w, http.StatusOK, cartView(ws))
}

func (h *ConsoleHandler) CartClear(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, func(c *cart.Cart) { c.Clear() })
}

// CartSetHotel switches hotels. Switching away from another hotel empties the cart.
func (h *ConsoleHandler) CartSetHotel(w http.ResponseWriter, r *http.Request) {
	var req cartHotelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HotelID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hotel_id is required"})
		return
	}
	h.mutateCart(w, r, func(c *cart.Cart) { c.SetHotelID(req.HotelID) })
}

func (h *ConsoleHandler) CartSetRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutateCart(w, r, func(c *cart.Cart) { c.SetRoomNumber(req.RoomNumber) })
}

func (h *ConsoleHandler) CartSetTable(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutateCart(w, r, func(c *cart.Cart) { c.SetTableNumber(req.TableNumber) })
}

func (h *ConsoleHandler) CartSetOrderType(w http.ResponseWriter, r *http.Request) {
	var req orderTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !cart.IsValidOrderType(req.OrderType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_type"})
		return
	}
	h.mutateCart(w, r, func(c *cart.Cart) { c.SetOrderType(req.OrderType) })
}

func (h *ConsoleHandler) CartSetGuestInfo(w http.ResponseWriter, r *http.Request) {
	var req cart.GuestInfoPatch
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutateCart(w, r, func(c *cart.Cart) { c.SetGuestInfo(req) })
}

func (h *ConsoleHandler) CartSetInstructions(w http.ResponseWriter, r *http.Request) {
	var req instructionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutateCart(w, r, func(c *cart.Cart) { c.SetSpecialInstructions(req.SpecialInstructions) })
}

// CartAddItem adds a menu item, merging into an identical line when one exists.
func (h *ConsoleHandler) CartAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MenuItem.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "menu_item.id is required"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be > 0"})
		return
	}
	for _, a := range req.Addons {
		if a.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "addon quantity must be > 0"})
			return
		}
	}

	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	line, _ := ws.Cart.AddItem(req.MenuItem, req.Quantity, req.Customizations, req.Addons, req.SpecialInstructions)
	h.writeThrough(r.Context(), ws, "cart", ws.SaveCart)
	writeJSON(w, http.StatusCreated, addItemResponse{Line: line, Cart: cartView(ws)})
}

func (h *ConsoleHandler) CartUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	if !ws.Cart.UpdateQuantity(lineID, req.Quantity) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cart line not found"})
		return
	}
	h.writeThrough(r.Context(), ws, "cart", ws.SaveCart)
	writeJSON(w, http.StatusOK, cartView(ws))
}

func (h *ConsoleHandler) CartRemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	if !ws.Cart.RemoveItem(lineID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cart line not found"})
		return
	}
	h.writeThrough(r.Context(), ws, "cart", ws.SaveCart)
	writeJSON(w, http.StatusOK, cartView(ws))
}

// CartCheckout places the cart as an order and settles what was ordered out
// of it. Edits made while the order is being placed survive.
func (h *ConsoleHandler) CartCheckout(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	draft, err := ws.Cart.Checkout()
	if err != nil {
		writeJSON(w, checkoutErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}

	order, err := h.orders.Place(draft)
	if err != nil {
		if status := checkoutErrorStatus(err); status != http.StatusInternalServerError {
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeInternalError(w, h.logger.With(zap.String("client_id", ws.ClientID)), "place order", err)
		return
	}

	ws.Cart.Settle(draft)
	h.writeThrough(r.Context(), ws, "cart", ws.SaveCart)
	writeJSON(w, http.StatusCreated, order)
}

// --- Helpers ---

func (h *ConsoleHandler) mutateCart(w http.ResponseWriter, r *http.Request, fn func(*cart.Cart)) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	fn(ws.Cart)
	h.writeThrough(r.Context(), ws, "cart", ws.SaveCart)
	writeJSON(w, http.StatusOK, cartView(ws))
}

func cartView(ws *workspace.Workspace) cartResponse {
	return cartResponse{State: ws.Cart.State(), ItemCount: ws.Cart.ItemCount(), Total: ws.Cart.Total()}
}

func checkoutErrorStatus(err error) int {
	switch {
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrNoHotel),
		errors.Is(err, cart.ErrMissingRoom),
		errors.Is(err, cart.ErrMissingTable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
