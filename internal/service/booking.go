package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/queue"
	"github.com/clinicride/escort-booking/internal/repository"
)

// MaxNotesLength is the maximum length of booking notes in characters.
const MaxNotesLength = 500

// Action is a guardian's answer to a pending booking.
type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionReject Action = "REJECT"
)

// transitions lists the allowed next statuses for each non-terminal
// status.  Assignment (REQUESTED -> ACCEPTED) is not here; it only
// happens through Respond.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusRequested:  {model.StatusCancelled},
	model.StatusAccepted:   {model.StatusInProgress, model.StatusCancelled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to model.BookingStatus) bool {
	if from.Terminal() {
		return false
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateBookingInput is the patient's booking request as decoded from
// the wire.  Pointers distinguish absent fields from zero values.
type CreateBookingInput struct {
	HospitalID    string   `json:"hospitalId"`
	PickupType    string   `json:"pickupType"`
	PickupLat     *float64 `json:"pickupLat"`
	PickupLng     *float64 `json:"pickupLng"`
	PickupAddress *string  `json:"pickupAddress"`
	ScheduledAt   string   `json:"scheduledAt"`
	Notes         *string  `json:"notes"`
	ServiceIDs    []string `json:"serviceIds"`
}

// CreateResult is a persisted booking and the number of guardians it
// will be offered to.
type CreateResult struct {
	Booking           *model.BookingDetail
	EligibleGuardians int
}

// RespondResult carries the accepted booking for ACCEPT.  For REJECT
// Booking is nil and Rejected is true.
type RespondResult struct {
	Booking  *model.BookingDetail
	Rejected bool
}

// BookingService is the booking lifecycle engine.  It owns creation,
// single-winner assignment and guarded status transitions.  It never
// retries: every failure is returned to the caller as one of the typed
// errors in errors.go.
type BookingService struct {
	bookings    BookingStore
	catalog     Catalog
	guard       *Guard
	eligibility *Eligibility
	events      queue.Sink
	log         *slog.Logger
	now         func() time.Time
}

// NewBookingService wires the engine.  A nil sink discards events and a
// nil logger falls back to slog.Default.
func NewBookingService(
	bookings BookingStore,
	patients PatientStore,
	guardians GuardianStore,
	catalog Catalog,
	events queue.Sink,
	log *slog.Logger,
) *BookingService {
	if events == nil {
		events = queue.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &BookingService{
		bookings:    bookings,
		catalog:     catalog,
		guard:       &Guard{Patients: patients, Guardians: guardians, Bookings: bookings},
		eligibility: &Eligibility{Guardians: guardians, Bookings: bookings},
		events:      events,
		log:         log,
		now:         time.Now,
	}
}

// Guard exposes the access control guard the engine authorizes with.
func (s *BookingService) Guard() *Guard { return s.guard }

// Eligibility exposes the resolver the engine uses for audience hints.
func (s *BookingService) Eligibility() *Eligibility { return s.eligibility }

// SetClock replaces the time source.  Tests only.
func (s *BookingService) SetClock(now func() time.Time) { s.now = now }

// Create validates and persists a new REQUESTED booking for the
// caller's patient profile.
func (s *BookingService) Create(ctx context.Context, caller Caller, in CreateBookingInput) (*CreateResult, error) {
	patient, err := s.guard.PatientProfile(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if patient == nil || caller.Role != model.RolePatient {
		return nil, denied("Only patients with completed profiles can create bookings")
	}

	b, serviceIDs, err := s.validateCreate(in)
	if err != nil {
		return nil, err
	}

	if _, err := s.catalog.GetActiveHospital(ctx, b.HospitalID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Hospital not found or is inactive"}
		}
		return nil, internal("load hospital", err)
	}
	if len(serviceIDs) > 0 {
		found, err := s.catalog.ServicesByIDs(ctx, serviceIDs)
		if err != nil {
			return nil, internal("load services", err)
		}
		if len(found) != len(serviceIDs) {
			return nil, &ValidationError{Fields: map[string]string{"serviceIds": "One or more services not found"}}
		}
	}

	now := s.now().UTC()
	b.ID = uuid.NewString()
	b.PatientID = patient.ID
	b.Status = model.StatusRequested
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := s.bookings.Create(ctx, b, serviceIDs); err != nil {
		return nil, internal("create booking", err)
	}

	eligible, err := s.eligibility.FindEligibleGuardians(ctx, b.HospitalID)
	if err != nil {
		s.log.Warn("booking_eligibility_failed", "booking_id", b.ID, "err", err)
		eligible = nil
	}

	detail, err := s.bookings.GetDetail(ctx, b.ID)
	if err != nil {
		return nil, internal("reload booking", err)
	}
	s.log.Info("booking_created", "booking_id", b.ID, "user_id", caller.UserID,
		"hospital_id", b.HospitalID, "eligible", len(eligible))

	notify := make([]string, 0, len(eligible))
	for _, g := range eligible {
		notify = append(notify, g.UserID)
	}
	s.emit(ctx, queue.EventBookingRequested, detail, "", notify)

	return &CreateResult{Booking: detail, EligibleGuardians: len(eligible)}, nil
}

func (s *BookingService) validateCreate(in CreateBookingInput) (*model.Booking, []string, error) {
	fields := map[string]string{}
	b := &model.Booking{}

	if strings.TrimSpace(in.HospitalID) == "" {
		fields["hospitalId"] = "Required"
	} else if _, err := uuid.Parse(in.HospitalID); err != nil {
		fields["hospitalId"] = "Invalid id"
	} else {
		b.HospitalID = in.HospitalID
	}

	pt, ok := model.ParsePickupType(in.PickupType)
	if !ok {
		fields["pickupType"] = "Must be HOSPITAL or HOME"
	}
	b.PickupType = pt

	if pt == model.PickupHome {
		if in.PickupLat == nil || in.PickupLng == nil {
			fields["pickupLat"] = "Required for HOME pickup"
			fields["pickupLng"] = "Required for HOME pickup"
		} else {
			if !validCoord(*in.PickupLat, 90) {
				fields["pickupLat"] = "Must be between -90 and 90"
			}
			if !validCoord(*in.PickupLng, 180) {
				fields["pickupLng"] = "Must be between -180 and 180"
			}
		}
		if in.PickupAddress == nil || strings.TrimSpace(*in.PickupAddress) == "" {
			fields["pickupAddress"] = "Required for HOME pickup"
		}
		if _, bad := fields["pickupLat"]; !bad {
			lat := *in.PickupLat
			b.PickupLat = &lat
		}
		if _, bad := fields["pickupLng"]; !bad {
			lng := *in.PickupLng
			b.PickupLng = &lng
		}
		if _, bad := fields["pickupAddress"]; !bad {
			addr := strings.TrimSpace(*in.PickupAddress)
			b.PickupAddress = &addr
		}
	}

	if in.ScheduledAt == "" {
		fields["scheduledAt"] = "Required"
	} else if t, err := time.Parse(time.RFC3339, in.ScheduledAt); err != nil {
		fields["scheduledAt"] = "Must be an RFC 3339 timestamp"
	} else {
		b.ScheduledAt = t.UTC()
	}

	if in.Notes != nil {
		if utf8.RuneCountInString(*in.Notes) > MaxNotesLength {
			fields["notes"] = "Must be at most 500 characters"
		} else if n := strings.TrimSpace(*in.Notes); n != "" {
			b.Notes = &n
		}
	}

	seen := make(map[string]struct{}, len(in.ServiceIDs))
	serviceIDs := make([]string, 0, len(in.ServiceIDs))
	for _, id := range in.ServiceIDs {
		if _, err := uuid.Parse(id); err != nil {
			fields["serviceIds"] = "Invalid id"
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		serviceIDs = append(serviceIDs, id)
	}

	if len(fields) > 0 {
		return nil, nil, &ValidationError{Fields: fields}
	}
	return b, serviceIDs, nil
}

func validCoord(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// Pending returns the bookings offered to the caller, who must hold an
// APPROVED guardian profile.
func (s *BookingService) Pending(ctx context.Context, caller Caller) ([]model.BookingDetail, error) {
	g, err := s.guard.ApprovedGuardian(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if g == nil || caller.Role != model.RoleGuardian {
		return nil, denied("Only verified guardians can view pending requests")
	}
	return s.eligibility.ListPending(ctx, g)
}

// Respond applies a guardian's ACCEPT or REJECT to a pending booking.
//
// ACCEPT is decided entirely by BookingStore.AssignGuardian.  Losing the
// race, or accepting a booking that is cancelled or unknown, yields a
// ConflictError.  REJECT changes nothing.
func (s *BookingService) Respond(ctx context.Context, caller Caller, bookingID string, action Action) (*RespondResult, error) {
	g, err := s.guard.ApprovedGuardian(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if g == nil || caller.Role != model.RoleGuardian {
		return nil, denied("Only verified guardians can respond to requests")
	}

	fields := map[string]string{}
	if _, err := uuid.Parse(bookingID); err != nil {
		fields["bookingId"] = "Invalid id"
	}
	if action != ActionAccept && action != ActionReject {
		fields["action"] = "Must be ACCEPT or REJECT"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if action == ActionReject {
		return s.reject(ctx, g, bookingID)
	}

	if err := s.bookings.AssignGuardian(ctx, bookingID, g.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.log.Info("booking_accept_conflict", "booking_id", bookingID, "user_id", caller.UserID)
			return nil, &ConflictError{Message: "Booking not found or already assigned to another guardian"}
		}
		return nil, internal("assign guardian", err)
	}

	detail, err := s.bookings.GetDetail(ctx, bookingID)
	if err != nil {
		return nil, internal("reload booking", err)
	}
	s.log.Info("booking_accepted", "booking_id", bookingID, "user_id", caller.UserID, "guardian_id", g.ID)
	s.emit(ctx, queue.EventBookingAccepted, detail, model.StatusRequested, nil)
	return &RespondResult{Booking: detail}, nil
}

func (s *BookingService) reject(ctx context.Context, g *model.Guardian, bookingID string) (*RespondResult, error) {
	b, err := s.bookings.GetDetail(ctx, bookingID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internal("load booking", err)
	}
	if b == nil || b.Status != model.StatusRequested || b.GuardianID != nil {
		return nil, &NotFoundError{Message: "Booking not found or already assigned"}
	}
	if !g.Prefers(b.HospitalID) {
		return nil, denied("This hospital is not in your preferred list")
	}
	s.log.Info("booking_rejected", "booking_id", bookingID, "guardian_id", g.ID)
	return &RespondResult{Rejected: true}, nil
}

// Transition moves a booking to target on behalf of caller.
//
// The patient may only cancel.  IN_PROGRESS and COMPLETED belong to the
// assigned guardian.  Nobody else may touch the booking.  Authorization
// is checked before the transition table, so an unauthorized caller
// never learns whether the move would have been legal.
func (s *BookingService) Transition(ctx context.Context, caller Caller, bookingID, target string) (*model.BookingDetail, error) {
	to, ok := model.ParseBookingStatus(target)
	if !ok {
		return nil, &ValidationError{Fields: map[string]string{"status": "Unknown status"}}
	}

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	isPatient := IsOwningPatient(b, caller.UserID)
	isGuardian := IsAssignedGuardian(b, caller.UserID)
	switch {
	case isPatient && to != model.StatusCancelled:
		return nil, denied("Patients can only cancel bookings")
	case (to == model.StatusInProgress || to == model.StatusCompleted) && !isGuardian:
		return nil, denied("Only the assigned guardian can update this status")
	case !isPatient && !isGuardian:
		return nil, denied("You don't have access to this booking")
	}

	from := b.Status
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{From: from, To: to}
	}

	if err := s.bookings.UpdateStatus(ctx, bookingID, from, to); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.log.Info("booking_transition_conflict", "booking_id", bookingID, "from", from, "to", to)
			return nil, &ConflictError{Message: "Booking status changed concurrently, reload and retry"}
		}
		return nil, internal("update booking status", err)
	}

	updated, err := s.bookings.GetDetail(ctx, bookingID)
	if err != nil {
		return nil, internal("reload booking", err)
	}
	s.log.Info("booking_status_changed", "booking_id", bookingID, "user_id", caller.UserID,
		"from", from, "to", to)
	s.emit(ctx, queue.EventBookingStatusChanged, updated, from, nil)
	return updated, nil
}

// Get returns the booking to its patient or its assigned guardian.
// Missing bookings are NotFound; anyone else's are Authorization.
func (s *BookingService) Get(ctx context.Context, caller Caller, bookingID string) (*model.BookingDetail, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !IsOwningPatient(b, caller.UserID) && !IsAssignedGuardian(b, caller.UserID) {
		return nil, denied("You don't have access to this booking")
	}
	return b, nil
}

// ListMine returns the caller's bookings, newest first: owned ones for
// patients, assigned ones for guardians.
func (s *BookingService) ListMine(ctx context.Context, caller Caller) ([]model.BookingDetail, error) {
	const msg = "Only patients and guardians can view bookings"
	var (
		list []model.BookingDetail
		err  error
	)
	switch caller.Role {
	case model.RolePatient:
		p, perr := s.guard.PatientProfile(ctx, caller.UserID)
		if perr != nil {
			return nil, perr
		}
		if p == nil {
			return nil, denied(msg)
		}
		list, err = s.bookings.ListByPatient(ctx, p.ID)
	case model.RoleGuardian:
		g, gerr := s.guard.GuardianProfile(ctx, caller.UserID)
		if gerr != nil {
			return nil, gerr
		}
		if g == nil {
			return nil, denied(msg)
		}
		list, err = s.bookings.ListByGuardian(ctx, g.ID)
	case model.RoleDoctor:
		return nil, denied(msg)
	default:
		return nil, denied(msg)
	}
	if err != nil {
		return nil, internal("list bookings", err)
	}
	return list, nil
}

func (s *BookingService) load(ctx context.Context, bookingID string) (*model.BookingDetail, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, &NotFoundError{Message: "Booking not found"}
	}
	b, err := s.bookings.GetDetail(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Booking not found"}
		}
		return nil, internal("load booking", err)
	}
	return b, nil
}

func (s *BookingService) emit(ctx context.Context, typ string, b *model.BookingDetail, prev model.BookingStatus, notify []string) {
	ev := queue.BookingEvent{
		Type:           typ,
		BookingID:      b.ID,
		HospitalID:     b.HospitalID,
		Status:         string(b.Status),
		PreviousStatus: string(prev),
		PatientUserID:  b.Patient.UserID,
		NotifyUserIDs:  notify,
		ScheduledAt:    b.ScheduledAt.UTC().Format(time.RFC3339),
		OccurredAt:     s.now().UTC().Format(time.RFC3339Nano),
	}
	if b.Guardian != nil {
		ev.GuardianUserID = b.Guardian.UserID
	}
	s.events.Publish(ctx, ev)
}
