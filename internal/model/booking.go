package model

import "time"

// BookingStatus is the lifecycle state of a booking.  A booking only
// ever moves forward; COMPLETED and CANCELLED are terminal.
type BookingStatus string

const (
	StatusRequested  BookingStatus = "REQUESTED"
	StatusAccepted   BookingStatus = "ACCEPTED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusCancelled  BookingStatus = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []BookingStatus{
	StatusRequested, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled,
}

// ParseBookingStatus reports whether s names a known status.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case StatusRequested, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transitions are possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PickupType says where the guardian meets the patient.
type PickupType string

const (
	PickupHospital PickupType = "HOSPITAL"
	PickupHome     PickupType = "HOME"
)

// ParsePickupType reports whether s names a known pickup type.
func ParsePickupType(s string) (PickupType, bool) {
	switch pt := PickupType(s); pt {
	case PickupHospital, PickupHome:
		return pt, true
	}
	return "", false
}

// Booking mirrors a row of the bookings table.
//
// Fields:
//
//	ID            – opaque UUID.
//	HospitalID    – destination hospital.
//	PatientID     – owning patient profile, immutable after creation.
//	GuardianID    – assigned guardian profile, nil while REQUESTED.
//	PickupType    – HOSPITAL or HOME.
//	PickupLat     – set only for HOME pickups.
//	PickupLng     – set only for HOME pickups.
//	PickupAddress – set only for HOME pickups.
//	ScheduledAt   – requested pickup time (UTC).
//	Notes         – optional free text, at most 500 characters.
//	Status        – lifecycle state.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type Booking struct {
	ID            string        `json:"id"`            // bookings.id
	HospitalID    string        `json:"hospitalId"`    // bookings.hospital_id
	PatientID     string        `json:"patientId"`     // bookings.patient_id
	GuardianID    *string       `json:"guardianId"`    // bookings.guardian_id (nullable)
	PickupType    PickupType    `json:"pickupType"`    // bookings.pickup_type
	PickupLat     *float64      `json:"pickupLat"`     // bookings.pickup_lat (nullable)
	PickupLng     *float64      `json:"pickupLng"`     // bookings.pickup_lng (nullable)
	PickupAddress *string       `json:"pickupAddress"` // bookings.pickup_address (nullable)
	ScheduledAt   time.Time     `json:"scheduledAt"`   // bookings.scheduled_at
	Notes         *string       `json:"notes"`         // bookings.notes (nullable)
	Status        BookingStatus `json:"status"`        // bookings.status
	CreatedAt     time.Time     `json:"createdAt"`     // bookings.created_at
	UpdatedAt     time.Time     `json:"updatedAt"`     // bookings.updated_at
}

// PickupLocation is the HOME pickup point shown to guardians.
type PickupLocation struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address *string  `json:"address"`
}

// Location returns the pickup point for HOME bookings and nil otherwise.
func (b *Booking) Location() *PickupLocation {
	if b.PickupType != PickupHome {
		return nil
	}
	return &PickupLocation{Lat: b.PickupLat, Lng: b.PickupLng, Address: b.PickupAddress}
}

// PatientSummary is the patient side of a booking as joined from
// patients and users.
type PatientSummary struct {
	ID             string  `json:"id"`
	UserID         string  `json:"userId"`
	FullName       string  `json:"name"`
	Mobile         *string `json:"mobile"`
	Email          *string `json:"email,omitempty"`
	Age            *int    `json:"age"`
	Gender         *string `json:"gender"`
	EmergencyPhone *string `json:"emergencyPhone"`
}

// GuardianSummary is the assigned guardian as joined from guardians and users.
type GuardianSummary struct {
	ID       string  `json:"id"`
	UserID   string  `json:"userId"`
	FullName string  `json:"name"`
	Mobile   *string `json:"mobile"`
}

// BookingDetail is a booking with everything the lifecycle needs to
// authorize a caller and everything clients display.
type BookingDetail struct {
	Booking
	Patient  PatientSummary   `json:"patient"`
	Guardian *GuardianSummary `json:"guardian"`
	Hospital Hospital         `json:"hospital"`
	Services []Service        `json:"services"`
	Review   *Review          `json:"review,omitempty"`
}

// Review is the optional one-to-one rating left after a booking.
type Review struct {
	ID        string    `json:"id"`        // reviews.id
	BookingID string    `json:"bookingId"` // reviews.booking_id
	Rating    int       `json:"rating"`    // reviews.rating
	Comment   *string   `json:"comment"`   // reviews.comment (nullable)
	CreatedAt time.Time `json:"createdAt"` // reviews.created_at
}
