package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/staykit/pms/internal/booking"
	"github.com/staykit/pms/internal/enum"
	"github.com/staykit/pms/internal/workspace"
)

func (h *ConsoleHandler) registerBookingRoutes(r chi.Router) {
	r.Get("/", h.BookingState)
	r.Delete("/", h.BookingClear)
	r.Put("/step", h.BookingSetStep)
	r.Put("/hotel", h.BookingSetHotel)
	r.Put("/dates", h.BookingSetDates)
	r.Put("/guests", h.BookingSetGuests)
	r.Put("/room-count", h.BookingSetRoomCount)
	r.Put("/guest-details", h.BookingSetGuestDetails)
	r.Put("/special-requests", h.BookingSetSpecialRequests)
	r.Put("/discount", h.BookingSetDiscount)
	r.Put("/source", h.BookingSetSource)
	r.Post("/rooms", h.BookingAddRoom)
	r.Patch("/rooms/{roomTypeID}", h.BookingUpdateRoomQuantity)
	r.Delete("/rooms/{roomTypeID}", h.BookingRemoveRoom)
	r.Get("/pricing", h.BookingPricing)
	r.Get("/submission", h.BookingSubmission)
}

// --- Request / Response types ---

type bookingResponse struct {
	booking.State
	Nights int `json:"nights"`
}

type stepRequest struct {
	Step string `json:"step"`
}

type hotelRequest struct {
	Hotel *booking.Hotel `json:"hotel"`
}

type datesRequest struct {
	CheckIn  *string `json:"check_in_date"`
	CheckOut *string `json:"check_out_date"`
}

type guestsRequest struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

type roomCountRequest struct {
	RoomCount int `json:"room_count"`
}

type guestDetailsRequest struct {
	GuestDetails *booking.GuestDetails `json:"guest_details"`
}

type specialRequestsRequest struct {
	SpecialRequests string `json:"special_requests"`
}

type discountRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type sourceRequest struct {
	Source string `json:"source"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// --- Handlers ---

func (h *ConsoleHandler) BookingState(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	writeJSON(w, http.StatusOK, bookingView(ws))
}

func (h *ConsoleHandler) BookingClear(w http.ResponseWriter, r *http.Request) {
	h.mutateBooking(w, r, func(f *booking.Flow) { f.Clear() })
}

func (h *ConsoleHandler) BookingSetStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !booking.IsValidStep(req.Step) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid step"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetStep(req.Step) })
}

func (h *ConsoleHandler) BookingSetHotel(w http.ResponseWriter, r *http.Request) {
	var req hotelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Hotel != nil && req.Hotel.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hotel.id is required"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetHotel(req.Hotel) })
}

func (h *ConsoleHandler) BookingSetDates(w http.ResponseWriter, r *http.Request) {
	var req datesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid check_in_date"})
		return
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid check_out_date"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetDates(checkIn, checkOut) })
}

func (h *ConsoleHandler) BookingSetGuests(w http.ResponseWriter, r *http.Request) {
	var req guestsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Adults < 1 || req.Children < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "adults must be >= 1 and children >= 0"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetGuests(req.Adults, req.Children) })
}

func (h *ConsoleHandler) BookingSetRoomCount(w http.ResponseWriter, r *http.Request) {
	var req roomCountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RoomCount < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room_count must be >= 1"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetRoomCount(req.RoomCount) })
}

func (h *ConsoleHandler) BookingSetGuestDetails(w http.ResponseWriter, r *http.Request) {
	var req guestDetailsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetGuestDetails(req.GuestDetails) })
}

func (h *ConsoleHandler) BookingSetSpecialRequests(w http.ResponseWriter, r *http.Request) {
	var req specialRequestsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetSpecialRequests(req.SpecialRequests) })
}

func (h *ConsoleHandler) BookingSetDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be >= 0"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetDiscountCode(req.Code, req.Amount) })
}

func (h *ConsoleHandler) BookingSetSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch req.Source {
	case enum.BookingSourceWebsite, enum.BookingSourceWalkIn, enum.BookingSourcePhone, enum.BookingSourceOTA:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid source"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.SetSource(req.Source) })
}

func (h *ConsoleHandler) BookingAddRoom(w http.ResponseWriter, r *http.Request) {
	var req booking.RoomSelection
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RoomType.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room_type.id is required"})
		return
	}
	if req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be >= 1"})
		return
	}
	if req.PricePerNight.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price_per_night must be >= 0"})
		return
	}
	h.mutateBooking(w, r, func(f *booking.Flow) { f.AddRoom(req) })
}

func (h *ConsoleHandler) BookingUpdateRoomQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "roomTypeID")
	h.mutateBooking(w, r, func(f *booking.Flow) { f.UpdateRoomQuantity(id, req.Quantity) })
}

func (h *ConsoleHandler) BookingRemoveRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "roomTypeID")
	h.mutateBooking(w, r, func(f *booking.Flow) { f.RemoveRoom(id) })
}

func (h *ConsoleHandler) BookingPricing(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	writeJSON(w, http.StatusOK, ws.Booking.CalculatePricing())
}

// BookingSubmission returns the submission payload once hotel, dates, guest
// details and at least one room are set.
func (h *ConsoleHandler) BookingSubmission(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	sub, ok := ws.Booking.BookingData()
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "booking is incomplete"})
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// --- Helpers ---

func (h *ConsoleHandler) mutateBooking(w http.ResponseWriter, r *http.Request, fn func(*booking.Flow)) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	fn(ws.Booking)
	h.writeThrough(r.Context(), ws, "booking", ws.SaveBooking)
	writeJSON(w, http.StatusOK, bookingView(ws))
}

func bookingView(ws *workspace.Workspace) bookingResponse {
	return bookingResponse{State: ws.Booking.State(), Nights: ws.Booking.Nights()}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Nil or empty
// input clears the date.
func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, *s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}
