package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/service"
)

func TestFindEligibleGuardians(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddHospital("Other", true)
	f.store.AddGuardian("pending", model.VerificationPending, f.hospital.ID)
	f.store.AddGuardian("rejected", model.VerificationRejected, f.hospital.ID)
	f.store.AddGuardian("elsewhere", model.VerificationApproved, other.ID)

	got, err := f.svc.Eligibility().FindEligibleGuardians(context.Background(), f.hospital.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := map[string]bool{f.g1.ID: true, f.g2.ID: true}
	if len(got) != len(want) {
		t.Fatalf("got %d guardians, want %d", len(got), len(want))
	}
	for _, g := range got {
		if !want[g.ID] {
			t.Errorf("unexpected guardian %s (%s)", g.FullName, g.VerificationStatus)
		}
	}
}

func TestPending_OrderedBySchedule(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddHospital("Other", true)
	now := time.Now().UTC()

	put := func(hospitalID string, in time.Duration, status model.BookingStatus) string {
		b := model.Booking{
			ID:          uuid.NewString(),
			HospitalID:  hospitalID,
			PatientID:   f.patient.ID,
			PickupType:  model.PickupHospital,
			ScheduledAt: now.Add(in),
			Status:      status,
			CreatedAt:   now,
		}
		f.store.PutBooking(b)
		return b.ID
	}
	later := put(f.hospital.ID, 3*time.Hour, model.StatusRequested)
	soon := put(f.hospital.ID, time.Hour, model.StatusRequested)
	put(f.hospital.ID, 2*time.Hour, model.StatusCancelled)
	put(other.ID, 30*time.Minute, model.StatusRequested)

	list, err := f.svc.Pending(context.Background(), guardianCaller(f.g1))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if got := ids(list); len(got) != 2 || got[0] != soon || got[1] != later {
		t.Fatalf("pending = %v, want [%s %s]", got, soon, later)
	}
}

func TestPending_UnverifiedGuardianDenied(t *testing.T) {
	f := newFixture(t)
	pending := f.store.AddGuardian("new", model.VerificationPending, f.hospital.ID)
	_, err := f.svc.Pending(context.Background(), guardianCaller(pending))
	var ae *service.AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}

	_, err = f.svc.Eligibility().ListPending(context.Background(), &pending)
	if !errors.As(err, &ae) {
		t.Fatalf("ListPending err = %v, want AuthorizationError", err)
	}
}

func TestPending_NoPreferredHospitals(t *testing.T) {
	f := newFixture(t)
	f.create(t)
	lonely := f.store.AddGuardian("lonely", model.VerificationApproved)
	list, err := f.svc.Pending(context.Background(), guardianCaller(lonely))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("pending = %v, want empty", ids(list))
	}
}
