// Package queue defines booking lifecycle events and moves them from
// the lifecycle engine to the presence relay, either through RabbitMQ
// or directly in-process.
package queue

import "context"

// Event types carried in BookingEvent.Type.  They double as routing keys.
const (
	EventBookingRequested     = "booking.requested"
	EventBookingAccepted      = "booking.accepted"
	EventBookingStatusChanged = "booking.status_changed"
)

// BookingEvent is published after every successful lifecycle change.
// It carries enough for the relay to address the right connections
// without querying the primary database.
type BookingEvent struct {
	Type           string   `json:"type"`
	BookingID      string   `json:"bookingId"`
	HospitalID     string   `json:"hospitalId"`
	Status         string   `json:"status"`
	PreviousStatus string   `json:"previousStatus,omitempty"`
	PatientUserID  string   `json:"patientUserId"`
	GuardianUserID string   `json:"guardianUserId,omitempty"`
	NotifyUserIDs  []string `json:"notifyUserIds,omitempty"`
	ScheduledAt    string   `json:"scheduledAt"`
	OccurredAt     string   `json:"occurredAt"`
}

// Sink accepts lifecycle events.  Publish must not block the caller for
// long and never reports failure: notification is best effort.
type Sink interface {
	Publish(ctx context.Context, ev BookingEvent)
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(context.Context, BookingEvent) {}
