package service

import (
	"context"
	"errors"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/repository"
)

// IsOwningPatient reports whether callerID is the account behind the
// booking's patient profile.
func IsOwningPatient(b *model.BookingDetail, callerID string) bool {
	return b != nil && callerID != "" && b.Patient.UserID == callerID
}

// IsAssignedGuardian reports whether callerID is the account behind the
// booking's assigned guardian.  Always false while unassigned.
func IsAssignedGuardian(b *model.BookingDetail, callerID string) bool {
	return b != nil && callerID != "" && b.Guardian != nil && b.Guardian.UserID == callerID
}

// Guard answers profile questions about a caller.  It is stateless
// apart from its stores and has no side effects.
type Guard struct {
	Patients  PatientStore
	Guardians GuardianStore
	Bookings  BookingStore
}

// PatientProfile returns the caller's patient profile, or nil when the
// caller has none.  A nil profile is the engine's "no patient profile"
// gate.
func (g *Guard) PatientProfile(ctx context.Context, callerID string) (*model.Patient, error) {
	p, err := g.Patients.GetByUserID(ctx, callerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("load patient profile", err)
	}
	return p, nil
}

// GuardianProfile returns the caller's guardian profile regardless of
// verification state, or nil when the caller has none.
func (g *Guard) GuardianProfile(ctx context.Context, callerID string) (*model.Guardian, error) {
	gd, err := g.Guardians.GetByUserID(ctx, callerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("load guardian profile", err)
	}
	return gd, nil
}

// ApprovedGuardian returns the caller's guardian profile only when it is
// APPROVED, and nil otherwise.  Pending and Respond deny on nil.
func (g *Guard) ApprovedGuardian(ctx context.Context, callerID string) (*model.Guardian, error) {
	gd, err := g.GuardianProfile(ctx, callerID)
	if err != nil || !gd.Approved() {
		return nil, err
	}
	return gd, nil
}

// CanJoinBooking reports whether userID is the patient or the assigned
// guardian of bookingID.  The presence relay uses it to admit room joins.
func (g *Guard) CanJoinBooking(ctx context.Context, bookingID, userID string) (bool, error) {
	b, err := g.Bookings.GetDetail(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internal("load booking", err)
	}
	return IsOwningPatient(b, userID) || IsAssignedGuardian(b, userID), nil
}
