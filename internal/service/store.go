// Package service implements the booking core: the eligibility
// resolver, the access control guard and the booking lifecycle engine.
// It depends on storage only through the interfaces below; the MySQL
// repositories satisfy them in production and servicetest.Store in tests.
package service

import (
	"context"

	"github.com/clinicride/escort-booking/internal/model"
)

// BookingStore persists bookings.  Lookups return repository.ErrNotFound
// for missing rows; AssignGuardian and UpdateStatus return
// repository.ErrConflict when their predicate matches nothing.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking, serviceIDs []string) error
	// AssignGuardian must be a single atomic conditional update on
	// (id, status = REQUESTED, guardian_id IS NULL).
	AssignGuardian(ctx context.Context, bookingID, guardianID string) error
	UpdateStatus(ctx context.Context, bookingID string, from, to model.BookingStatus) error
	GetDetail(ctx context.Context, id string) (*model.BookingDetail, error)
	ListPendingForHospitals(ctx context.Context, hospitalIDs []string) ([]model.BookingDetail, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.BookingDetail, error)
	ListByGuardian(ctx context.Context, guardianID string) ([]model.BookingDetail, error)
}

// GuardianStore reads guardian profiles.
type GuardianStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.Guardian, error)
	ListApprovedForHospital(ctx context.Context, hospitalID string) ([]model.Guardian, error)
}

// PatientStore reads patient profiles.
type PatientStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.Patient, error)
}

// Catalog is the read-only hospital and service catalog.
type Catalog interface {
	GetActiveHospital(ctx context.Context, id string) (*model.Hospital, error)
	ListActiveHospitals(ctx context.Context) ([]model.Hospital, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	ServicesByIDs(ctx context.Context, ids []string) ([]model.Service, error)
}

// Caller is the authenticated identity supplied by the identity
// collaborator.  The core trusts it without re-validating credentials.
type Caller struct {
	UserID string
	Role   model.Role
}

// UserStore reads accounts owned by the identity collaborator.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}
