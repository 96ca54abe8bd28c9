package service

import (
	"context"

	"github.com/clinicride/escort-booking/internal/model"
)

// Eligibility decides which guardians may see and accept a booking: an
// eligible guardian is APPROVED and lists the booking's hospital among
// their preferred hospitals.  No ranking, no pagination.
type Eligibility struct {
	Guardians GuardianStore
	Bookings  BookingStore
}

// FindEligibleGuardians returns every eligible guardian for hospitalID.
func (e *Eligibility) FindEligibleGuardians(ctx context.Context, hospitalID string) ([]model.Guardian, error) {
	gs, err := e.Guardians.ListApprovedForHospital(ctx, hospitalID)
	if err != nil {
		return nil, internal("find eligible guardians", err)
	}
	out := gs[:0]
	for _, g := range gs {
		if g.Approved() && g.Prefers(hospitalID) {
			out = append(out, g)
		}
	}
	return out, nil
}

// ListPending returns the REQUESTED, unassigned bookings at the
// guardian's preferred hospitals, soonest scheduledAt first.  Guardians
// that are not APPROVED get an AuthorizationError.
func (e *Eligibility) ListPending(ctx context.Context, g *model.Guardian) ([]model.BookingDetail, error) {
	if !g.Approved() {
		return nil, denied("Only verified guardians can view pending requests")
	}
	if len(g.PreferredHospitals) == 0 {
		return []model.BookingDetail{}, nil
	}
	list, err := e.Bookings.ListPendingForHospitals(ctx, g.PreferredHospitals)
	if err != nil {
		return nil, internal("list pending bookings", err)
	}
	return list, nil
}
