package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/queue"
	"github.com/clinicride/escort-booking/internal/service"
	"github.com/clinicride/escort-booking/internal/service/servicetest"
)

type fixture struct {
	store    *servicetest.Store
	events   *servicetest.Events
	svc      *service.BookingService
	hospital model.Hospital
	patient  model.Patient
	g1, g2   model.Guardian
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := servicetest.New()
	ev := &servicetest.Events{}
	f := &fixture{store: st, events: ev}
	f.hospital = st.AddHospital("Siriraj", true)
	f.patient = st.AddPatient("Pat")
	f.g1 = st.AddGuardian("Gina", model.VerificationApproved, f.hospital.ID)
	f.g2 = st.AddGuardian("Gus", model.VerificationApproved, f.hospital.ID)
	f.svc = service.NewBookingService(st, st.Patients(), st.Guardians(), st, ev, nil)
	return f
}

func (f *fixture) patientCaller() service.Caller {
	return service.Caller{UserID: f.patient.UserID, Role: model.RolePatient}
}

func guardianCaller(g model.Guardian) service.Caller {
	return service.Caller{UserID: g.UserID, Role: model.RoleGuardian}
}

func (f *fixture) hospitalInput() service.CreateBookingInput {
	return service.CreateBookingInput{
		HospitalID:  f.hospital.ID,
		PickupType:  "HOSPITAL",
		ScheduledAt: time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}
}

func (f *fixture) create(t *testing.T) *model.BookingDetail {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.patientCaller(), f.hospitalInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res.Booking
}

func ptr[T any](v T) *T { return &v }

func TestCreate_PersistsRequestedBooking(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), f.patientCaller(), f.hospitalInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.Status != model.StatusRequested {
		t.Fatalf("status = %s, want REQUESTED", res.Booking.Status)
	}
	if res.Booking.GuardianID != nil {
		t.Fatalf("guardianId = %v, want nil", *res.Booking.GuardianID)
	}
	if res.EligibleGuardians != 2 {
		t.Fatalf("eligible = %d, want 2", res.EligibleGuardians)
	}
	if res.Booking.PatientID != f.patient.ID {
		t.Fatalf("patientId = %s, want %s", res.Booking.PatientID, f.patient.ID)
	}

	evs := f.events.All()
	if len(evs) != 1 || evs[0].Type != queue.EventBookingRequested {
		t.Fatalf("events = %+v, want one booking.requested", evs)
	}
	if len(evs[0].NotifyUserIDs) != 2 {
		t.Fatalf("notify = %v, want both guardians", evs[0].NotifyUserIDs)
	}
}

func TestCreate_HospitalPickupIgnoresCoordinates(t *testing.T) {
	f := newFixture(t)
	in := f.hospitalInput()
	in.PickupLat = ptr(13.7)
	in.PickupLng = ptr(100.5)
	in.PickupAddress = ptr("somewhere")

	res, err := f.svc.Create(context.Background(), f.patientCaller(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b := res.Booking
	if b.PickupLat != nil || b.PickupLng != nil || b.PickupAddress != nil {
		t.Fatalf("HOSPITAL pickup kept location: %v %v %v", b.PickupLat, b.PickupLng, b.PickupAddress)
	}
	if b.Location() != nil {
		t.Fatal("Location() should be nil for HOSPITAL pickup")
	}
}

func TestCreate_HomePickupRequiresBothCoordinates(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name     string
		lat, lng *float64
	}{
		{"neither", nil, nil},
		{"lat only", ptr(13.7), nil},
		{"lng only", nil, ptr(100.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := f.hospitalInput()
			in.PickupType = "HOME"
			in.PickupLat = tc.lat
			in.PickupLng = tc.lng
			in.PickupAddress = ptr("12 Sukhumvit")

			_, err := f.svc.Create(context.Background(), f.patientCaller(), in)
			var ve *service.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			for _, field := range []string{"pickupLat", "pickupLng"} {
				if _, ok := ve.Fields[field]; !ok {
					t.Errorf("missing field %s in %v", field, ve.Fields)
				}
			}
		})
	}
}

func TestCreate_HomePickupKeepsLocation(t *testing.T) {
	f := newFixture(t)
	in := f.hospitalInput()
	in.PickupType = "HOME"
	in.PickupLat = ptr(13.7)
	in.PickupLng = ptr(100.5)
	in.PickupAddress = ptr(" 12 Sukhumvit ")

	res, err := f.svc.Create(context.Background(), f.patientCaller(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	loc := res.Booking.Location()
	if loc == nil || *loc.Lat != 13.7 || *loc.Lng != 100.5 || *loc.Address != "12 Sukhumvit" {
		t.Fatalf("location = %+v", loc)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		edit  func(*service.CreateBookingInput)
		field string
	}{
		{"missing hospital", func(in *service.CreateBookingInput) { in.HospitalID = "" }, "hospitalId"},
		{"bad hospital id", func(in *service.CreateBookingInput) { in.HospitalID = "h-1" }, "hospitalId"},
		{"bad pickup type", func(in *service.CreateBookingInput) { in.PickupType = "AIRPORT" }, "pickupType"},
		{"bad time", func(in *service.CreateBookingInput) { in.ScheduledAt = "tomorrow" }, "scheduledAt"},
		{"long notes", func(in *service.CreateBookingInput) { in.Notes = ptr(strings.Repeat("n", 501)) }, "notes"},
		{"bad service id", func(in *service.CreateBookingInput) { in.ServiceIDs = []string{"x"} }, "serviceIds"},
		{"unknown service", func(in *service.CreateBookingInput) { in.ServiceIDs = []string{uuid.NewString()} }, "serviceIds"},
		{"latitude range", func(in *service.CreateBookingInput) {
			in.PickupType = "HOME"
			in.PickupLat = ptr(91.0)
			in.PickupLng = ptr(100.0)
			in.PickupAddress = ptr("x")
		}, "pickupLat"},
		{"missing address", func(in *service.CreateBookingInput) {
			in.PickupType = "HOME"
			in.PickupLat = ptr(13.0)
			in.PickupLng = ptr(100.0)
		}, "pickupAddress"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := f.hospitalInput()
			tc.edit(&in)
			_, err := f.svc.Create(context.Background(), f.patientCaller(), in)
			var ve *service.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, ok := ve.Fields[tc.field]; !ok {
				t.Fatalf("fields = %v, want %s", ve.Fields, tc.field)
			}
		})
	}
}

func TestCreate_NotesAtLimitAccepted(t *testing.T) {
	f := newFixture(t)
	in := f.hospitalInput()
	in.Notes = ptr(strings.Repeat("ก", service.MaxNotesLength))
	if _, err := f.svc.Create(context.Background(), f.patientCaller(), in); err != nil {
		t.Fatalf("500 character notes rejected: %v", err)
	}
}

func TestCreate_DuplicateServicesStoredOnce(t *testing.T) {
	f := newFixture(t)
	wheel := f.store.AddService("Wheelchair")
	in := f.hospitalInput()
	in.ServiceIDs = []string{wheel.ID, wheel.ID}

	res, err := f.svc.Create(context.Background(), f.patientCaller(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(res.Booking.Services) != 1 {
		t.Fatalf("services = %+v, want one row", res.Booking.Services)
	}
}

func TestCreate_InactiveHospitalNotFound(t *testing.T) {
	f := newFixture(t)
	closed := f.store.AddHospital("Closed", false)
	in := f.hospitalInput()
	in.HospitalID = closed.ID

	_, err := f.svc.Create(context.Background(), f.patientCaller(), in)
	var nf *service.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestCreate_RequiresPatientProfile(t *testing.T) {
	f := newFixture(t)
	bare := service.Caller{UserID: f.store.AddUser("nobody"), Role: model.RolePatient}
	_, err := f.svc.Create(context.Background(), bare, f.hospitalInput())
	var ae *service.AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}

	_, err = f.svc.Create(context.Background(), guardianCaller(f.g1), f.hospitalInput())
	if !errors.As(err, &ae) {
		t.Fatalf("guardian create err = %v, want AuthorizationError", err)
	}
}

func TestCreate_StorageFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("connection refused")
	_, err := f.svc.Create(context.Background(), f.patientCaller(), f.hospitalInput())
	var ie *service.InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InternalError", err)
	}
}

func TestRespond_SingleWinnerUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	const k = 16
	guardians := make([]model.Guardian, k)
	for i := range guardians {
		guardians[i] = f.store.AddGuardian("g", model.VerificationApproved, f.hospital.ID)
	}
	b := f.create(t)

	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		winners   []string
		conflicts int
		others    []error
	)
	for _, g := range guardians {
		wg.Add(1)
		go func(g model.Guardian) {
			defer wg.Done()
			<-start
			res, err := f.svc.Respond(context.Background(), guardianCaller(g), b.ID, service.ActionAccept)
			mu.Lock()
			defer mu.Unlock()
			var ce *service.ConflictError
			switch {
			case err == nil:
				winners = append(winners, res.Booking.Guardian.UserID)
			case errors.As(err, &ce):
				conflicts++
			default:
				others = append(others, err)
			}
		}(g)
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if len(winners) != 1 || conflicts != k-1 {
		t.Fatalf("winners = %d, conflicts = %d, want 1 and %d", len(winners), conflicts, k-1)
	}
	stored, _ := f.store.Booking(b.ID)
	if stored.Status != model.StatusAccepted || stored.GuardianID == nil {
		t.Fatalf("stored = %+v, want ACCEPTED with guardian", stored)
	}
}

func TestRespond_AcceptReturnsContactDetails(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	res, err := f.svc.Respond(context.Background(), guardianCaller(f.g1), b.ID, service.ActionAccept)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Booking.Patient.FullName != "Pat" || res.Booking.Patient.EmergencyPhone == nil {
		t.Fatalf("patient = %+v", res.Booking.Patient)
	}
	if res.Booking.Hospital.ID != f.hospital.ID {
		t.Fatalf("hospital = %+v", res.Booking.Hospital)
	}

	evs := f.events.All()
	last := evs[len(evs)-1]
	if last.Type != queue.EventBookingAccepted || last.GuardianUserID != f.g1.UserID {
		t.Fatalf("event = %+v", last)
	}
}

func TestRespond_AcceptCancelledOrUnknownConflicts(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	if _, err := f.svc.Transition(context.Background(), f.patientCaller(), b.ID, "CANCELLED"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var ce *service.ConflictError
	_, err := f.svc.Respond(context.Background(), guardianCaller(f.g1), b.ID, service.ActionAccept)
	if !errors.As(err, &ce) {
		t.Fatalf("accept cancelled err = %v, want ConflictError", err)
	}
	_, err = f.svc.Respond(context.Background(), guardianCaller(f.g1), uuid.NewString(), service.ActionAccept)
	if !errors.As(err, &ce) {
		t.Fatalf("accept unknown err = %v, want ConflictError", err)
	}
}

func TestRespond_RequiresApprovedGuardian(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	pending := f.store.AddGuardian("new", model.VerificationPending, f.hospital.ID)

	var ae *service.AuthorizationError
	_, err := f.svc.Respond(context.Background(), guardianCaller(pending), b.ID, service.ActionAccept)
	if !errors.As(err, &ae) {
		t.Fatalf("pending guardian err = %v, want AuthorizationError", err)
	}
	_, err = f.svc.Respond(context.Background(), f.patientCaller(), b.ID, service.ActionAccept)
	if !errors.As(err, &ae) {
		t.Fatalf("patient err = %v, want AuthorizationError", err)
	}
}

func TestRespond_BadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Respond(context.Background(), guardianCaller(f.g1), "nope", "MAYBE")
	var ve *service.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := ve.Fields["bookingId"]; !ok {
		t.Errorf("fields = %v, want bookingId", ve.Fields)
	}
	if _, ok := ve.Fields["action"]; !ok {
		t.Errorf("fields = %v, want action", ve.Fields)
	}
}

func TestRespond_RejectLeavesBookingPending(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	res, err := f.svc.Respond(context.Background(), guardianCaller(f.g1), b.ID, service.ActionReject)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !res.Rejected || res.Booking != nil {
		t.Fatalf("result = %+v", res)
	}

	pending, err := f.svc.Pending(context.Background(), guardianCaller(f.g1))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Fatalf("pending after reject = %+v, want the same booking", pending)
	}
}

func TestRespond_RejectOutsidePreferredHospitals(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	other := f.store.AddHospital("Other", true)
	outsider := f.store.AddGuardian("far", model.VerificationApproved, other.ID)

	_, err := f.svc.Respond(context.Background(), guardianCaller(outsider), b.ID, service.ActionReject)
	var ae *service.AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}
}

func TestRespond_RejectAssignedBookingNotFound(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	if _, err := f.svc.Respond(context.Background(), guardianCaller(f.g1), b.ID, service.ActionAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err := f.svc.Respond(context.Background(), guardianCaller(f.g2), b.ID, service.ActionReject)
	var nf *service.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

// seed stores a booking in the given state, assigned to g1 unless it is
// REQUESTED.
func (f *fixture) seed(status model.BookingStatus) model.Booking {
	now := time.Now().UTC()
	b := model.Booking{
		ID:          uuid.NewString(),
		HospitalID:  f.hospital.ID,
		PatientID:   f.patient.ID,
		PickupType:  model.PickupHospital,
		ScheduledAt: now.Add(time.Hour),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status != model.StatusRequested {
		gid := f.g1.ID
		b.GuardianID = &gid
	}
	f.store.PutBooking(b)
	return b
}

func TestTransition_Table(t *testing.T) {
	allowed := map[[2]model.BookingStatus]bool{
		{model.StatusRequested, model.StatusCancelled}:  true,
		{model.StatusAccepted, model.StatusInProgress}:  true,
		{model.StatusAccepted, model.StatusCancelled}:   true,
		{model.StatusInProgress, model.StatusCompleted}: true,
		{model.StatusInProgress, model.StatusCancelled}: true,
	}
	for _, from := range model.AllStatuses {
		for _, to := range model.AllStatuses {
			name := string(from) + "->" + string(to)
			t.Run(name, func(t *testing.T) {
				f := newFixture(t)
				b := f.seed(from)
				// An authorized caller for each target: the patient for
				// CANCELLED while unassigned, otherwise the assigned guardian.
				caller := guardianCaller(f.g1)
				if b.GuardianID == nil {
					caller = f.patientCaller()
				}
				if caller.Role == model.RolePatient && to != model.StatusCancelled {
					t.Skip("no authorized caller for this pair")
				}

				got, err := f.svc.Transition(context.Background(), caller, b.ID, string(to))
				if allowed[[2]model.BookingStatus{from, to}] {
					if err != nil {
						t.Fatalf("err = %v, want success", err)
					}
					if got.Status != to {
						t.Fatalf("status = %s, want %s", got.Status, to)
					}
					stored, _ := f.store.Booking(b.ID)
					if stored.Status != to {
						t.Fatalf("stored status = %s, want %s", stored.Status, to)
					}
					return
				}
				var ite *service.InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Fatalf("err = %v, want InvalidTransitionError", err)
				}
				if ite.From != from || ite.To != to {
					t.Fatalf("error names %s->%s", ite.From, ite.To)
				}
			})
		}
	}
}

func TestCanTransition_TerminalStatusesAreFinal(t *testing.T) {
	for _, from := range model.AllStatuses {
		for _, to := range model.AllStatuses {
			if from.Terminal() && service.CanTransition(from, to) {
				t.Errorf("%s -> %s allowed out of a terminal status", from, to)
			}
		}
	}
	if !service.CanTransition(model.StatusAccepted, model.StatusInProgress) {
		t.Fatal("ACCEPTED -> IN_PROGRESS must stay allowed")
	}
	if model.StatusRequested.Terminal() || !model.StatusCancelled.Terminal() || !model.StatusCompleted.Terminal() {
		t.Fatal("Terminal mismatch")
	}
}

func TestTransition_AuthorizationBoundary(t *testing.T) {
	f := newFixture(t)
	var ae *service.AuthorizationError

	for _, target := range []string{"IN_PROGRESS", "COMPLETED"} {
		b := f.seed(model.StatusAccepted)
		_, err := f.svc.Transition(context.Background(), f.patientCaller(), b.ID, target)
		if !errors.As(err, &ae) {
			t.Fatalf("patient %s err = %v, want AuthorizationError", target, err)
		}
	}

	for _, target := range []string{"IN_PROGRESS", "COMPLETED", "CANCELLED"} {
		b := f.seed(model.StatusAccepted)
		_, err := f.svc.Transition(context.Background(), guardianCaller(f.g2), b.ID, target)
		if !errors.As(err, &ae) {
			t.Fatalf("other guardian %s err = %v, want AuthorizationError", target, err)
		}
	}

	other := f.store.AddPatient("Someone else")
	b := f.seed(model.StatusRequested)
	_, err := f.svc.Transition(context.Background(),
		service.Caller{UserID: other.UserID, Role: model.RolePatient}, b.ID, "CANCELLED")
	if !errors.As(err, &ae) {
		t.Fatalf("foreign patient err = %v, want AuthorizationError", err)
	}
}

func TestTransition_UnknownBookingAndStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), f.patientCaller(), uuid.NewString(), "CANCELLED")
	var nf *service.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}

	b := f.seed(model.StatusRequested)
	_, err = f.svc.Transition(context.Background(), f.patientCaller(), b.ID, "PAUSED")
	var ve *service.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestTransition_EmitsStatusChanged(t *testing.T) {
	f := newFixture(t)
	b := f.seed(model.StatusAccepted)
	if _, err := f.svc.Transition(context.Background(), guardianCaller(f.g1), b.ID, "IN_PROGRESS"); err != nil {
		t.Fatalf("start: %v", err)
	}
	evs := f.events.All()
	if len(evs) != 1 {
		t.Fatalf("events = %+v", evs)
	}
	ev := evs[0]
	if ev.Type != queue.EventBookingStatusChanged || ev.Status != "IN_PROGRESS" || ev.PreviousStatus != "ACCEPTED" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestGet_Posture(t *testing.T) {
	f := newFixture(t)
	b := f.seed(model.StatusAccepted)

	if _, err := f.svc.Get(context.Background(), f.patientCaller(), b.ID); err != nil {
		t.Fatalf("patient get: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), guardianCaller(f.g1), b.ID); err != nil {
		t.Fatalf("guardian get: %v", err)
	}

	var ae *service.AuthorizationError
	if _, err := f.svc.Get(context.Background(), guardianCaller(f.g2), b.ID); !errors.As(err, &ae) {
		t.Fatalf("stranger err = %v, want AuthorizationError", err)
	}
	var nf *service.NotFoundError
	if _, err := f.svc.Get(context.Background(), f.patientCaller(), uuid.NewString()); !errors.As(err, &nf) {
		t.Fatalf("missing err = %v, want NotFoundError", err)
	}
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	base := time.Now()
	tick := 0
	f.svc.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	first := f.create(t)
	second := f.create(t)
	if _, err := f.svc.Respond(context.Background(), guardianCaller(f.g1), first.ID, service.ActionAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	mine, err := f.svc.ListMine(context.Background(), f.patientCaller())
	if err != nil {
		t.Fatalf("patient list: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != second.ID {
		t.Fatalf("patient list = %v, want newest first", ids(mine))
	}

	assigned, err := f.svc.ListMine(context.Background(), guardianCaller(f.g1))
	if err != nil {
		t.Fatalf("guardian list: %v", err)
	}
	if len(assigned) != 1 || assigned[0].ID != first.ID {
		t.Fatalf("guardian list = %v", ids(assigned))
	}

	var ae *service.AuthorizationError
	doctor := service.Caller{UserID: f.store.AddUser("doc"), Role: model.RoleDoctor}
	if _, err := f.svc.ListMine(context.Background(), doctor); !errors.As(err, &ae) {
		t.Fatalf("doctor err = %v, want AuthorizationError", err)
	}
	noProfile := service.Caller{UserID: f.store.AddUser("new"), Role: model.RoleGuardian}
	if _, err := f.svc.ListMine(context.Background(), noProfile); !errors.As(err, &ae) {
		t.Fatalf("no profile err = %v, want AuthorizationError", err)
	}
}

func ids(list []model.BookingDetail) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

// TestEndToEnd walks one booking from request to completion with two
// guardians racing for it.
func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.patientCaller(), f.hospitalInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b := created.Booking
	if b.Status != model.StatusRequested || b.GuardianID != nil {
		t.Fatalf("created = %+v", b.Booking)
	}

	type outcome struct {
		g   model.Guardian
		err error
	}
	results := make(chan outcome, 2)
	for _, g := range []model.Guardian{f.g1, f.g2} {
		go func(g model.Guardian) {
			_, err := f.svc.Respond(ctx, guardianCaller(g), b.ID, service.ActionAccept)
			results <- outcome{g, err}
		}(g)
	}
	var winner, loser model.Guardian
	for i := 0; i < 2; i++ {
		o := <-results
		var ce *service.ConflictError
		switch {
		case o.err == nil:
			winner = o.g
		case errors.As(o.err, &ce):
			loser = o.g
		default:
			t.Fatalf("accept: %v", o.err)
		}
	}
	if winner.ID == "" || loser.ID == "" {
		t.Fatal("expected exactly one winner and one loser")
	}

	// The loser is no longer a participant, so it cannot read the booking;
	// the patient sees the winner.
	seen, err := f.svc.Get(ctx, f.patientCaller(), b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if seen.Status != model.StatusAccepted || *seen.GuardianID != winner.ID {
		t.Fatalf("after accept = %s guardian %v, want ACCEPTED by %s", seen.Status, *seen.GuardianID, winner.ID)
	}

	if _, err := f.svc.Transition(ctx, guardianCaller(winner), b.ID, "IN_PROGRESS"); err != nil {
		t.Fatalf("winner start: %v", err)
	}
	var ae *service.AuthorizationError
	if _, err := f.svc.Transition(ctx, guardianCaller(loser), b.ID, "IN_PROGRESS"); !errors.As(err, &ae) {
		t.Fatalf("loser start err = %v, want AuthorizationError", err)
	}
	done, err := f.svc.Transition(ctx, guardianCaller(winner), b.ID, "COMPLETED")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Status.Terminal() {
		t.Fatalf("status = %s, want terminal", done.Status)
	}
	var ite *service.InvalidTransitionError
	if _, err := f.svc.Transition(ctx, guardianCaller(winner), b.ID, "CANCELLED"); !errors.As(err, &ite) {
		t.Fatalf("cancel after complete err = %v, want InvalidTransitionError", err)
	}
}
