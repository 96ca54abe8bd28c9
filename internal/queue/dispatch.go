package queue

import (
	"context"

	"github.com/clinicride/escort-booking/internal/model"
)

// Pusher is the presence relay's external push API.  Every call is a
// fire-and-forget send to the currently open matching connections.
type Pusher interface {
	BroadcastToRoom(bookingID string, payload any)
	BroadcastToUser(userID string, payload any)
	BroadcastToRole(role model.Role, payload any)
}

// Dispatch fans a lifecycle event out to live connections:
//
//	booking.requested      -> each eligible guardian's user
//	booking.accepted       -> the patient's user, plus every guardian so
//	                          their pending lists drop the booking
//	booking.status_changed -> the booking's room
//
// Unknown event types are ignored.
func Dispatch(p Pusher, ev BookingEvent) {
	switch ev.Type {
	case EventBookingRequested:
		msg := map[string]any{
			"type":        "booking_requested",
			"bookingId":   ev.BookingID,
			"hospitalId":  ev.HospitalID,
			"scheduledAt": ev.ScheduledAt,
		}
		for _, uid := range ev.NotifyUserIDs {
			p.BroadcastToUser(uid, msg)
		}
	case EventBookingAccepted:
		p.BroadcastToUser(ev.PatientUserID, map[string]any{
			"type":           "booking_accepted",
			"bookingId":      ev.BookingID,
			"guardianUserId": ev.GuardianUserID,
		})
		p.BroadcastToRole(model.RoleGuardian, map[string]any{
			"type":      "booking_taken",
			"bookingId": ev.BookingID,
		})
	case EventBookingStatusChanged:
		p.BroadcastToRoom(ev.BookingID, map[string]any{
			"type":           "booking_status_changed",
			"bookingId":      ev.BookingID,
			"status":         ev.Status,
			"previousStatus": ev.PreviousStatus,
		})
	}
}

// DirectSink hands events straight to an in-process Pusher.  It is used
// when no broker is configured (single instance deployments, tests).
type DirectSink struct {
	Pusher Pusher
}

// Publish implements Sink.
func (s DirectSink) Publish(_ context.Context, ev BookingEvent) {
	Dispatch(s.Pusher, ev)
}
