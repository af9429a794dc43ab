package booking

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/staykit/pms/internal/enum"
)

// Fixed charge rates applied on top of the room subtotal.
var (
	TaxRate           = decimal.RequireFromString("0.13")
	ServiceChargeRate = decimal.RequireFromString("0.10")
)

type Hotel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

type RoomType struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MaxOccupancy int    `json:"max_occupancy,omitempty"`
}

type RatePlan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MealPlan string `json:"meal_plan,omitempty"`
}

// RoomSelection is one line of the booking, unique per room type.
type RoomSelection struct {
	RoomType      RoomType        `json:"room_type"`
	Rate          RatePlan        `json:"rate"`
	Quantity      int             `json:"quantity"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type GuestDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Pricing holds the derived totals. Discount is stored but does not reduce
// GrandTotal.
type Pricing struct {
	RoomTotal     decimal.Decimal `json:"room_total"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	Discount      decimal.Decimal `json:"discount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// State is the full booking wizard state. It is also the persisted projection.
type State struct {
	Step            string          `json:"step"`
	Hotel           *Hotel          `json:"selected_hotel"`
	CheckInDate     *time.Time      `json:"check_in_date"`
	CheckOutDate    *time.Time      `json:"check_out_date"`
	Adults          int             `json:"adults"`
	Children        int             `json:"children"`
	RoomCount       int             `json:"room_count"`
	SelectedRooms   []RoomSelection `json:"selected_rooms"`
	GuestDetails    *GuestDetails   `json:"guest_details"`
	SpecialRequests string          `json:"special_requests,omitempty"`
	DiscountCode    string          `json:"discount_code,omitempty"`
	Source          string          `json:"source"`
	Pricing         Pricing         `json:"pricing"`
}

// SubmissionRoom is a room line in a submission-ready booking.
type SubmissionRoom struct {
	RoomTypeID    string          `json:"room_type_id"`
	RatePlanID    string          `json:"rate_plan_id"`
	Quantity      int             `json:"quantity"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// Submission is the payload handed to the reservations backend.
type Submission struct {
	HotelID         string           `json:"hotel_id"`
	CheckInDate     time.Time        `json:"check_in_date"`
	CheckOutDate    time.Time        `json:"check_out_date"`
	Nights          int              `json:"nights"`
	Adults          int              `json:"adults"`
	Children        int              `json:"children"`
	Rooms           []SubmissionRoom `json:"rooms"`
	Guest           GuestDetails     `json:"guest"`
	SpecialRequests string           `json:"special_requests,omitempty"`
	DiscountCode    string           `json:"discount_code,omitempty"`
	Source          string           `json:"source"`
	Pricing         Pricing          `json:"pricing"`
}

func initialState() State {
	return State{
		Step:          enum.BookingStepSearch,
		Adults:        1,
		RoomCount:     1,
		SelectedRooms: []RoomSelection{},
		Source:        enum.BookingSourceWebsite,
		Pricing:       zeroPricing(),
	}
}

func zeroPricing() Pricing {
	return Pricing{
		RoomTotal:     decimal.Zero,
		TaxAmount:     decimal.Zero,
		ServiceCharge: decimal.Zero,
		Discount:      decimal.Zero,
		GrandTotal:    decimal.Zero,
	}
}

// Flow drives the booking wizard and keeps totals consistent with the
// selected rooms.
type Flow struct {
	mu sync.Mutex
	st State
}

func NewFlow() *Flow {
	return &Flow{st: initialState()}
}

// IsValidStep reports whether step is a known wizard step.
func IsValidStep(step string) bool {
	switch step {
	case enum.BookingStepSearch, enum.BookingStepRooms, enum.BookingStepDetails,
		enum.BookingStepPayment, enum.BookingStepConfirmation:
		return true
	}
	return false
}

// SetStep assigns the step without checking transition order.
func (f *Flow) SetStep(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Step = step
}

func (f *Flow) SetHotel(h *Hotel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h == nil {
		f.st.Hotel = nil
		return
	}
	hotel := *h
	f.st.Hotel = &hotel
}

// SetDates updates the stay and reprices every selected room.
func (f *Flow) SetDates(checkIn, checkOut *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.CheckInDate = copyTime(checkIn)
	f.st.CheckOutDate = copyTime(checkOut)

	nights := f.nightsLocked()
	for i := range f.st.SelectedRooms {
		f.st.SelectedRooms[i].TotalPrice = lineTotal(f.st.SelectedRooms[i], nights)
	}
	f.calculateLocked()
}

func (f *Flow) SetGuests(adults, children int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Adults = adults
	f.st.Children = children
}

func (f *Flow) SetRoomCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.RoomCount = n
}

func (f *Flow) SetGuestDetails(g *GuestDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g == nil {
		f.st.GuestDetails = nil
		return
	}
	details := *g
	f.st.GuestDetails = &details
}

func (f *Flow) SetSpecialRequests(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.SpecialRequests = s
}

// SetDiscountCode records the code and its discount amount. The amount is
// kept on Pricing.Discount and is not subtracted from GrandTotal.
func (f *Flow) SetDiscountCode(code string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.DiscountCode = code
	f.st.Pricing.Discount = amount
}

func (f *Flow) SetSource(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Source = source
}

// AddRoom inserts sel, replacing any line with the same room type in place.
// The quantity is stored as given; callers validate it.
func (f *Flow) AddRoom(sel RoomSelection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel.TotalPrice = lineTotal(sel, f.nightsLocked())
	if i := f.indexLocked(sel.RoomType.ID); i >= 0 {
		f.st.SelectedRooms[i] = sel
	} else {
		f.st.SelectedRooms = append(f.st.SelectedRooms, sel)
	}
	f.calculateLocked()
}

func (f *Flow) RemoveRoom(roomTypeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(roomTypeID)
}

// UpdateRoomQuantity reprices one line; quantity <= 0 removes it.
func (f *Flow) UpdateRoomQuantity(roomTypeID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if quantity <= 0 {
		f.removeLocked(roomTypeID)
		return
	}
	i := f.indexLocked(roomTypeID)
	if i < 0 {
		return
	}
	f.st.SelectedRooms[i].Quantity = quantity
	f.st.SelectedRooms[i].TotalPrice = lineTotal(f.st.SelectedRooms[i], f.nightsLocked())
	f.calculateLocked()
}

// CalculatePricing recomputes the derived totals from the selected rooms.
func (f *Flow) CalculatePricing() Pricing {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calculateLocked()
	return f.st.Pricing
}

// Nights is the ceiling of the day difference between check-out and check-in,
// or 0 when either date is missing.
func (f *Flow) Nights() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nightsLocked()
}

// BookingData returns a submission-ready snapshot, or false if hotel, dates,
// guest details or rooms are missing.
func (f *Flow) BookingData() (Submission, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.st
	if st.Hotel == nil || st.CheckInDate == nil || st.CheckOutDate == nil ||
		st.GuestDetails == nil || len(st.SelectedRooms) == 0 {
		return Submission{}, false
	}

	rooms := make([]SubmissionRoom, 0, len(st.SelectedRooms))
	for _, r := range st.SelectedRooms {
		rooms = append(rooms, SubmissionRoom{
			RoomTypeID:    r.RoomType.ID,
			RatePlanID:    r.Rate.ID,
			Quantity:      r.Quantity,
			PricePerNight: r.PricePerNight,
			TotalPrice:    r.TotalPrice,
		})
	}

	return Submission{
		HotelID:         st.Hotel.ID,
		CheckInDate:     *st.CheckInDate,
		CheckOutDate:    *st.CheckOutDate,
		Nights:          f.nightsLocked(),
		Adults:          st.Adults,
		Children:        st.Children,
		Rooms:           rooms,
		Guest:           *st.GuestDetails,
		SpecialRequests: st.SpecialRequests,
		DiscountCode:    st.DiscountCode,
		Source:          st.Source,
		Pricing:         st.Pricing,
	}, true
}

// Clear resets every field, derived pricing included, to its initial value.
func (f *Flow) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = initialState()
}

// State returns a deep copy of the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneState(f.st)
}

func (f *Flow) Snapshot() State {
	return f.State()
}

// Restore replaces the state with a persisted projection. Line totals and
// pricing are recomputed so a stale blob cannot break the invariants.
func (f *Flow) Restore(st State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st = cloneState(st)
	if !IsValidStep(st.Step) {
		st.Step = enum.BookingStepSearch
	}
	if st.SelectedRooms == nil {
		st.SelectedRooms = []RoomSelection{}
	}
	f.st = st
	nights := f.nightsLocked()
	for i := range f.st.SelectedRooms {
		f.st.SelectedRooms[i].TotalPrice = lineTotal(f.st.SelectedRooms[i], nights)
	}
	f.calculateLocked()
}

func (f *Flow) calculateLocked() {
	roomTotal := decimal.Zero
	for _, r := range f.st.SelectedRooms {
		roomTotal = roomTotal.Add(r.TotalPrice)
	}
	tax := roomTotal.Mul(TaxRate).Round(0)
	service := roomTotal.Mul(ServiceChargeRate).Round(0)

	f.st.Pricing.RoomTotal = roomTotal
	f.st.Pricing.TaxAmount = tax
	f.st.Pricing.ServiceCharge = service
	f.st.Pricing.GrandTotal = roomTotal.Add(tax).Add(service)
}

func (f *Flow) nightsLocked() int {
	return nightsBetween(f.st.CheckInDate, f.st.CheckOutDate)
}

func (f *Flow) indexLocked(roomTypeID string) int {
	for i, r := range f.st.SelectedRooms {
		if r.RoomType.ID == roomTypeID {
			return i
		}
	}
	return -1
}

func (f *Flow) removeLocked(roomTypeID string) {
	i := f.indexLocked(roomTypeID)
	if i < 0 {
		return
	}
	f.st.SelectedRooms = append(f.st.SelectedRooms[:i], f.st.SelectedRooms[i+1:]...)
	f.calculateLocked()
}

func nightsBetween(checkIn, checkOut *time.Time) int {
	if checkIn == nil || checkOut == nil {
		return 0
	}
	days := math.Abs(checkOut.Sub(*checkIn).Hours()) / 24
	return int(math.Ceil(days))
}

func lineTotal(r RoomSelection, nights int) decimal.Decimal {
	return r.PricePerNight.
		Mul(decimal.NewFromInt(int64(r.Quantity))).
		Mul(decimal.NewFromInt(int64(nights)))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneState(st State) State {
	out := st
	if st.Hotel != nil {
		h := *st.Hotel
		out.Hotel = &h
	}
	if st.GuestDetails != nil {
		g := *st.GuestDetails
		out.GuestDetails = &g
	}
	out.CheckInDate = copyTime(st.CheckInDate)
	out.CheckOutDate = copyTime(st.CheckOutDate)
	if st.SelectedRooms != nil {
		out.SelectedRooms = make([]RoomSelection, len(st.SelectedRooms))
		copy(out.SelectedRooms, st.SelectedRooms)
	}
	return out
}
