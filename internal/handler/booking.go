package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/middleware"
	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle over HTTP.  JWTAuth has
// already run for every route, so a missing caller is a 401.
type BookingHandler struct {
	Svc *service.BookingService
	Log *slog.Logger
}

func NewBookingHandler(svc *service.BookingService, log *slog.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &BookingHandler{Svc: svc, Log: log}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
}

// pendingView is what a guardian sees for an open request.  Pickup
// location is only present for HOME pickups.
type pendingView struct {
	ID          string                `json:"id"`
	Patient     pendingPatient        `json:"patient"`
	Hospital    model.Hospital        `json:"hospital"`
	PickupType  model.PickupType      `json:"pickupType"`
	Location    *model.PickupLocation `json:"pickupLocation"`
	ScheduledAt time.Time             `json:"scheduledAt"`
	Notes       *string               `json:"notes"`
	Services    []model.Service       `json:"services"`
	CreatedAt   time.Time             `json:"createdAt"`
}

type pendingPatient struct {
	Name   string  `json:"name"`
	Mobile *string `json:"mobile"`
	Age    *int    `json:"age"`
	Gender *string `json:"gender"`
}

func toPendingView(b *model.BookingDetail) pendingView {
	return pendingView{
		ID: b.ID,
		Patient: pendingPatient{
			Name:   b.Patient.FullName,
			Mobile: b.Patient.Mobile,
			Age:    b.Patient.Age,
			Gender: b.Patient.Gender,
		},
		Hospital:    b.Hospital,
		PickupType:  b.PickupType,
		Location:    b.Location(),
		ScheduledAt: b.ScheduledAt,
		Notes:       b.Notes,
		Services:    b.Services,
		CreatedAt:   b.CreatedAt,
	}
}

// Create handles POST /booking.
func (h *BookingHandler) Create(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.CreateBookingInput
	if err := c.Bind(&in); err != nil {
		return bindError(c)
	}
	res, err := h.Svc.Create(c.Request().Context(), caller, in)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	next := "Waiting for a guardian to accept your request"
	if res.EligibleGuardians == 0 {
		next = "No guardians available in your area. We'll notify you when one becomes available."
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":                "Booking request created successfully",
		"booking":                res.Booking,
		"eligibleGuardiansCount": res.EligibleGuardians,
		"nextStep":               next,
	})
}

// Pending handles GET /booking/pending.
func (h *BookingHandler) Pending(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Svc.Pending(c.Request().Context(), caller)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	views := make([]pendingView, len(list))
	for i := range list {
		views[i] = toPendingView(&list[i])
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(views), "bookings": views})
}

type respondReq struct {
	BookingID string         `json:"bookingId"`
	Action    service.Action `json:"action"`
}

// Respond handles POST /booking/respond.
func (h *BookingHandler) Respond(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req respondReq
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	res, err := h.Svc.Respond(c.Request().Context(), caller, req.BookingID, req.Action)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if res.Rejected {
		return c.JSON(http.StatusOK, echo.Map{
			"message": "Booking rejected. The request will be shown to other guardians.",
		})
	}
	b := res.Booking
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Booking accepted! Session will begin soon.",
		"booking": b,
		"patientContact": echo.Map{
			"name":           b.Patient.FullName,
			"mobile":         b.Patient.Mobile,
			"emergencyPhone": b.Patient.EmergencyPhone,
		},
		"pickupDetails": echo.Map{
			"type":        b.PickupType,
			"hospital":    b.Hospital,
			"location":    b.Location(),
			"scheduledAt": b.ScheduledAt,
		},
	})
}

var statusMessages = map[model.BookingStatus]string{
	model.StatusInProgress: "Session started! Safe travels.",
	model.StatusCompleted:  "Session completed successfully!",
	model.StatusCancelled:  "Booking has been cancelled.",
}

// UpdateStatus handles PATCH /booking/:id/status.
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	b, err := h.Svc.Transition(c.Request().Context(), caller, c.Param("id"), req.Status)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	msg, ok := statusMessages[b.Status]
	if !ok {
		msg = "Booking status updated."
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg, "booking": b})
}

// Mine handles GET /booking/my.
func (h *BookingHandler) Mine(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Svc.ListMine(c.Request().Context(), caller)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Get handles GET /booking/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Svc.Get(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}
