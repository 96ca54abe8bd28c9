package model

// Role is the closed set of account roles carried in access tokens.
type Role string

const (
	RolePatient  Role = "PATIENT"
	RoleGuardian Role = "GUARDIAN"
	RoleDoctor   Role = "DOCTOR"
)

// ParseRole reports whether s names a known role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RolePatient, RoleGuardian, RoleDoctor:
		return r, true
	}
	return "", false
}

// VerificationStatus is the review state of a guardian profile.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Guardian is an escort profile.  PreferredHospitals is the guardian's
// service area: only bookings for these hospitals are offered to them.
//
// Fields:
//
//	ID                 – guardians.id
//	UserID             – owning account (guardians.user_id).
//	FullName           – users.full_name of the owning account.
//	VerificationStatus – only APPROVED guardians see or accept bookings.
//	PreferredHospitals – hospital ids from guardian_preferred_hospitals.
type Guardian struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	FullName           string             `json:"name"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	PreferredHospitals []string           `json:"preferredHospitals"`
}

// Approved reports whether the guardian may see and accept bookings.
func (g *Guardian) Approved() bool {
	return g != nil && g.VerificationStatus == VerificationApproved
}

// Prefers reports whether hospitalID is in the guardian's preferred set.
func (g *Guardian) Prefers(hospitalID string) bool {
	for _, id := range g.PreferredHospitals {
		if id == hospitalID {
			return true
		}
	}
	return false
}

// Patient is the profile that owns bookings.
type Patient struct {
	ID             string  `json:"id"`             // patients.id
	UserID         string  `json:"userId"`         // patients.user_id
	Age            *int    `json:"age"`            // patients.age (nullable)
	Gender         *string `json:"gender"`         // patients.gender (nullable)
	EmergencyPhone *string `json:"emergencyPhone"` // patients.emergency_phone (nullable)
}

// Hospital is a catalog entry.  Only active hospitals accept bookings.
type Hospital struct {
	ID       string `json:"id"`       // hospitals.id
	Name     string `json:"name"`     // hospitals.name
	Address  string `json:"address"`  // hospitals.address
	City     string `json:"city"`     // hospitals.city
	IsActive bool   `json:"isActive"` // hospitals.is_active
}

// Service is an add-on a patient can select for a booking.
type Service struct {
	ID          string  `json:"id"`          // services.id
	Name        string  `json:"name"`        // services.name
	Description *string `json:"description"` // services.description (nullable)
}
