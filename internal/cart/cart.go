package cart

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staykit/pms/internal/enum"
)

// Errors returned by Checkout.
var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrNoHotel      = errors.New("hotel is not selected")
	ErrMissingRoom  = errors.New("room number is required for room service")
	ErrMissingTable = errors.New("table number is required for dine-in")
)

type MenuItem struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Category           string              `json:"category,omitempty"`
	Price              decimal.Decimal     `json:"price"`
	DiscountedPrice    decimal.NullDecimal `json:"discounted_price"`
	PreparationMinutes int                 `json:"preparation_minutes,omitempty"`
}

// EffectivePrice prefers the discounted price when one is set.
func (m MenuItem) EffectivePrice() decimal.Decimal {
	if m.DiscountedPrice.Valid {
		return m.DiscountedPrice.Decimal
	}
	return m.Price
}

type Customization struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Option        string          `json:"option"`
	PriceModifier decimal.Decimal `json:"price_modifier"`
}

type Addon struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Line is one cart entry. Lines are addressed by ID, never by position.
type Line struct {
	ID                  uuid.UUID       `json:"id"`
	MenuItemID          string          `json:"menu_item_id"`
	MenuItem            MenuItem        `json:"menu_item"`
	Quantity            int             `json:"quantity"`
	Customizations      []Customization `json:"selected_customizations"`
	Addons              []Addon         `json:"selected_addons"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	TotalPrice          decimal.Decimal `json:"total_price"`
}

// UnitPrice is the price of one unit including customizations and add-ons.
func (l Line) UnitPrice() decimal.Decimal {
	unit := l.MenuItem.EffectivePrice()
	for _, c := range l.Customizations {
		unit = unit.Add(c.PriceModifier)
	}
	for _, a := range l.Addons {
		unit = unit.Add(a.Price.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return unit
}

func (l Line) total() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// GuestInfoPatch overwrites only the non-nil fields.
type GuestInfoPatch struct {
	Name  *string `json:"guest_name,omitempty"`
	Phone *string `json:"guest_phone,omitempty"`
	Email *string `json:"guest_email,omitempty"`
}

// State is the cart contents. It is also the persisted projection.
type State struct {
	HotelID             string          `json:"hotel_id,omitempty"`
	RoomNumber          string          `json:"room_number,omitempty"`
	TableNumber         string          `json:"table_number,omitempty"`
	OrderType           string          `json:"order_type"`
	Items               []Line          `json:"items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	GuestName           string          `json:"guest_name,omitempty"`
	GuestPhone          string          `json:"guest_phone,omitempty"`
	GuestEmail          string          `json:"guest_email,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

func initialState() State {
	return State{
		OrderType: enum.OrderTypeRoomService,
		Items:     []Line{},
		Subtotal:  decimal.Zero,
	}
}

// IsValidOrderType reports whether t is a known order type.
func IsValidOrderType(t string) bool {
	switch t {
	case enum.OrderTypeRoomService, enum.OrderTypeDineIn, enum.OrderTypeTakeaway:
		return true
	}
	return false
}

// Cart is a restaurant cart scoped to a single hotel.
type Cart struct {
	mu    sync.Mutex
	st    State
	newID func() uuid.UUID
}

func New() *Cart {
	return &Cart{st: initialState(), newID: uuid.New}
}

// SetHotelID switches the cart to hotel id. Switching away from a different
// hotel discards every line and the room/table selection.
func (c *Cart) SetHotelID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.HotelID != "" && c.st.HotelID != id {
		c.st.Items = []Line{}
		c.st.Subtotal = decimal.Zero
		c.st.RoomNumber = ""
		c.st.TableNumber = ""
	}
	c.st.HotelID = id
}

// SetRoomNumber selects a room and switches the order to room service.
func (c *Cart) SetRoomNumber(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.RoomNumber = room
	c.st.TableNumber = ""
	c.st.OrderType = enum.OrderTypeRoomService
}

// SetTableNumber selects a table and switches the order to dine-in.
func (c *Cart) SetTableNumber(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.TableNumber = table
	c.st.RoomNumber = ""
	c.st.OrderType = enum.OrderTypeDineIn
}

func (c *Cart) SetOrderType(t string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.OrderType = t
}

func (c *Cart) SetGuestInfo(p GuestInfoPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Name != nil {
		c.st.GuestName = *p.Name
	}
	if p.Phone != nil {
		c.st.GuestPhone = *p.Phone
	}
	if p.Email != nil {
		c.st.GuestEmail = *p.Email
	}
}

func (c *Cart) SetSpecialInstructions(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.SpecialInstructions = s
}

// AddItem adds quantity units of item. A line with the same menu item,
// customizations and add-ons absorbs the quantity; otherwise a new line is
// appended. Returns the affected line, or false for a non-positive quantity.
func (c *Cart) AddItem(item MenuItem, quantity int, customizations []Customization, addons []Addon, instructions string) (Line, bool) {
	if quantity <= 0 {
		return Line{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := Line{
		MenuItemID:          item.ID,
		MenuItem:            item,
		Quantity:            quantity,
		Customizations:      append([]Customization{}, customizations...),
		Addons:              append([]Addon{}, addons...),
		SpecialInstructions: instructions,
	}

	for i := range c.st.Items {
		existing := &c.st.Items[i]
		if sameSignature(*existing, line) {
			existing.Quantity += quantity
			existing.TotalPrice = existing.total()
			c.recalculateLocked()
			return cloneLine(*existing), true
		}
	}

	line.ID = c.newID()
	line.TotalPrice = line.total()
	c.st.Items = append(c.st.Items, line)
	c.recalculateLocked()
	return cloneLine(line), true
}

// RemoveItem deletes the line with the given ID. Returns false if absent.
func (c *Cart) RemoveItem(lineID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(lineID)
}

// UpdateQuantity sets a line's quantity; quantity <= 0 removes the line.
// Returns false if the line does not exist.
func (c *Cart) UpdateQuantity(lineID uuid.UUID, quantity int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quantity <= 0 {
		return c.removeLocked(lineID)
	}
	i := c.indexLocked(lineID)
	if i < 0 {
		return false
	}
	c.st.Items[i].Quantity = quantity
	c.st.Items[i].TotalPrice = c.st.Items[i].total()
	c.recalculateLocked()
	return true
}

// Clear empties the lines and order-level instructions. Guest info and the
// location are kept.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Items = []Line{}
	c.st.Subtotal = decimal.Zero
	c.st.SpecialInstructions = ""
}

// Settle takes out of the cart what an order placed from draft consumed.
// Lines added after the draft was taken stay, and a line that grew keeps the
// extra units. Order-level instructions are cleared only if unchanged.
func (c *Cart) Settle(draft State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, placed := range draft.Items {
		i := c.indexLocked(placed.ID)
		if i < 0 {
			continue
		}
		if cur := &c.st.Items[i]; cur.Quantity > placed.Quantity {
			cur.Quantity -= placed.Quantity
			cur.TotalPrice = cur.total()
			continue
		}
		c.st.Items = append(c.st.Items[:i], c.st.Items[i+1:]...)
	}
	if c.st.SpecialInstructions == draft.SpecialInstructions {
		c.st.SpecialInstructions = ""
	}
	c.recalculateLocked()
}

// ItemCount is the sum of line quantities.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.st.Items {
		n += l.Quantity
	}
	return n
}

// Total returns the subtotal. Tax and service charge are not included.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Subtotal
}

// Checkout validates that the cart can be placed as an order and returns a
// snapshot of it. The cart itself is left untouched.
func (c *Cart) Checkout() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.st.HotelID == "":
		return State{}, ErrNoHotel
	case len(c.st.Items) == 0:
		return State{}, ErrEmptyCart
	case c.st.OrderType == enum.OrderTypeRoomService && c.st.RoomNumber == "":
		return State{}, ErrMissingRoom
	case c.st.OrderType == enum.OrderTypeDineIn && c.st.TableNumber == "":
		return State{}, ErrMissingTable
	}
	return cloneState(c.st), nil
}

func (c *Cart) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneState(c.st)
}

func (c *Cart) Snapshot() State {
	return c.State()
}

// Restore replaces the cart with a persisted projection. Lines without an ID
// get one, and totals are recomputed from the line contents.
func (c *Cart) Restore(st State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st = cloneState(st)
	if !IsValidOrderType(st.OrderType) {
		st.OrderType = enum.OrderTypeRoomService
	}
	if st.Items == nil {
		st.Items = []Line{}
	}
	for i := range st.Items {
		if st.Items[i].ID == uuid.Nil {
			st.Items[i].ID = c.newID()
		}
		st.Items[i].TotalPrice = st.Items[i].total()
	}
	c.st = st
	c.recalculateLocked()
}

func (c *Cart) recalculateLocked() {
	sum := decimal.Zero
	for _, l := range c.st.Items {
		sum = sum.Add(l.TotalPrice)
	}
	c.st.Subtotal = sum
}

func (c *Cart) indexLocked(id uuid.UUID) int {
	for i, l := range c.st.Items {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) removeLocked(id uuid.UUID) bool {
	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.st.Items = append(c.st.Items[:i], c.st.Items[i+1:]...)
	c.recalculateLocked()
	return true
}

// sameSignature compares menu item, customization set (id, option) and
// add-on set (id, quantity), ignoring order.
func sameSignature(a, b Line) bool {
	if a.MenuItemID != b.MenuItemID {
		return false
	}
	return equalKeys(customizationKeys(a.Customizations), customizationKeys(b.Customizations)) &&
		equalKeys(addonKeys(a.Addons), addonKeys(b.Addons))
}

func customizationKeys(cs []Customization) []string {
	keys := make([]string, 0, len(cs))
	for _, c := range cs {
		keys = append(keys, c.ID+"\x00"+c.Option)
	}
	sort.Strings(keys)
	return keys
}

func addonKeys(as []Addon) []string {
	keys := make([]string, 0, len(as))
	for _, a := range as {
		keys = append(keys, a.ID+"\x00"+strconv.Itoa(a.Quantity))
	}
	sort.Strings(keys)
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneLine(l Line) Line {
	out := l
	out.Customizations = append([]Customization{}, l.Customizations...)
	out.Addons = append([]Addon{}, l.Addons...)
	return out
}

func cloneState(st State) State {
	out := st
	if st.Items != nil {
		out.Items = make([]Line, len(st.Items))
		for i, l := range st.Items {
			out.Items[i] = cloneLine(l)
		}
	}
	return out
}
