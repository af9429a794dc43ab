// Package tracking follows restaurant orders from placement to delivery and
// pushes every change to subscribers.
package tracking

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staykit/pms/internal/cart"
	"github.com/staykit/pms/internal/enum"
	"go.uber.org/zap"
)

// Event types published through the Notifier.
const (
	EventOrderPlaced  = "order.placed"
	EventOrderUpdated = "order.updated"
)

// Errors returned by the tracker.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// transitions lists the statuses reachable from each status. Delivered and
// cancelled are terminal.
var transitions = map[string][]string{
	enum.OrderStatusPending:   {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed: {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusDelivered, enum.OrderStatusCancelled},
}

// Notifier receives order events. Satisfied by *ws.Hub.
type Notifier interface {
	NotifyOrder(hotelID, orderID, eventType string, payload any) error
}

type Item struct {
	MenuItemID          string               `json:"menu_item_id"`
	Name                string               `json:"name"`
	Quantity            int                  `json:"quantity"`
	UnitPrice           decimal.Decimal      `json:"unit_price"`
	TotalPrice          decimal.Decimal      `json:"total_price"`
	Customizations      []cart.Customization `json:"customizations,omitempty"`
	Addons              []cart.Addon         `json:"addons,omitempty"`
	SpecialInstructions string               `json:"special_instructions,omitempty"`
}

type StatusChange struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type Order struct {
	ID                  uuid.UUID       `json:"id"`
	Number              string          `json:"order_number"`
	HotelID             string          `json:"hotel_id"`
	OrderType           string          `json:"order_type"`
	RoomNumber          string          `json:"room_number,omitempty"`
	TableNumber         string          `json:"table_number,omitempty"`
	Status              string          `json:"status"`
	Items               []Item          `json:"items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	GuestName           string          `json:"guest_name,omitempty"`
	GuestPhone          string          `json:"guest_phone,omitempty"`
	GuestEmail          string          `json:"guest_email,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	EstimatedMinutes    int             `json:"estimated_minutes"`
	History             []StatusChange  `json:"history"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsValidStatus reports whether s is a known order status.
func IsValidStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusConfirmed, enum.OrderStatusPreparing,
		enum.OrderStatusReady, enum.OrderStatusDelivered, enum.OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker keeps placed orders in memory.
type Tracker struct {
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	orders  map[uuid.UUID]*Order
	byHotel map[string][]uuid.UUID
	seq     map[string]int
}

// NewTracker creates a tracker. A nil notifier disables push updates.
func NewTracker(notifier Notifier, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		orders:   make(map[uuid.UUID]*Order),
		byHotel:  make(map[string][]uuid.UUID),
		seq:      make(map[string]int),
	}
}

// Place turns a checked-out cart into a pending order.
func (t *Tracker) Place(draft cart.State) (Order, error) {
	if draft.HotelID == "" {
		return Order{}, cart.ErrNoHotel
	}
	if len(draft.Items) == 0 {
		return Order{}, cart.ErrEmptyCart
	}

	now := t.now()
	o := &Order{
		ID:                  uuid.New(),
		HotelID:             draft.HotelID,
		OrderType:           draft.OrderType,
		RoomNumber:          draft.RoomNumber,
		TableNumber:         draft.TableNumber,
		Status:              enum.OrderStatusPending,
		Items:               make([]Item, 0, len(draft.Items)),
		Subtotal:            decimal.Zero,
		GuestName:           draft.GuestName,
		GuestPhone:          draft.GuestPhone,
		GuestEmail:          draft.GuestEmail,
		SpecialInstructions: draft.SpecialInstructions,
		History:             []StatusChange{{Status: enum.OrderStatusPending, At: now}},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, l := range draft.Items {
		o.Items = append(o.Items, Item{
			MenuItemID:          l.MenuItemID,
			Name:                l.MenuItem.Name,
			Quantity:            l.Quantity,
			UnitPrice:           l.UnitPrice(),
			TotalPrice:          l.TotalPrice,
			Customizations:      l.Customizations,
			Addons:              l.Addons,
			SpecialInstructions: l.SpecialInstructions,
		})
		o.Subtotal = o.Subtotal.Add(l.TotalPrice)
		if l.MenuItem.PreparationMinutes > o.EstimatedMinutes {
			o.EstimatedMinutes = l.MenuItem.PreparationMinutes
		}
	}

	t.mu.Lock()
	t.seq[o.HotelID]++
	o.Number = fmt.Sprintf("ORD-%04d", t.seq[o.HotelID])
	t.orders[o.ID] = o
	t.byHotel[o.HotelID] = append(t.byHotel[o.HotelID], o.ID)
	placed := cloneOrder(o)
	t.mu.Unlock()

	t.logger.Info("order placed",
		zap.String("order_id", placed.ID.String()),
		zap.String("order_number", placed.Number),
		zap.String("hotel_id", placed.HotelID),
	)
	t.notify(EventOrderPlaced, placed)
	return placed, nil
}

func (t *Tracker) Get(id uuid.UUID) (Order, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// ListByHotel returns the hotel's orders, newest first. A non-empty status
// filters the result.
func (t *Tracker) ListByHotel(hotelID, status string) []Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []Order{}
	for _, id := range t.byHotel[hotelID] {
		o := t.orders[id]
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateStatus moves an order along the status graph.
func (t *Tracker) UpdateStatus(id uuid.UUID, status string) (Order, error) {
	if !IsValidStatus(status) {
		return Order{}, ErrInvalidStatus
	}

	t.mu.Lock()
	o, ok := t.orders[id]
	if !ok {
		t.mu.Unlock()
		return Order{}, ErrOrderNotFound
	}
	if !CanTransition(o.Status, status) {
		from := o.Status
		t.mu.Unlock()
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, status)
	}
	now := t.now()
	o.Status = status
	o.UpdatedAt = now
	o.History = append(o.History, StatusChange{Status: status, At: now})
	updated := cloneOrder(o)
	t.mu.Unlock()

	t.notify(EventOrderUpdated, updated)
	return updated, nil
}

func (t *Tracker) notify(eventType string, o Order) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.NotifyOrder(o.HotelID, o.ID.String(), eventType, o); err != nil {
		t.logger.Warn("order notification failed", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func cloneOrder(o *Order) Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.History = append([]StatusChange(nil), o.History...)
	return c
}
