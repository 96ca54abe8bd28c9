package model

import "time"

// User represents an account record as stored in the `users` table.
// Accounts are issued by the external identity service; this module
// only reads them to show names and contact numbers next to bookings.
//
// Fields:
//
//	ID        – primary key identifier (UUID), also the token subject.
//	FullName  – display name.
//	Email     – optional email address.
//	Mobile    – optional mobile number.
//	Role      – PATIENT, GUARDIAN or DOCTOR.
//	CreatedAt – timestamp of creation.
type User struct {
	ID        string    `json:"id"`        // users.id
	FullName  string    `json:"fullName"`  // users.full_name
	Email     *string   `json:"email"`     // users.email (nullable)
	Mobile    *string   `json:"mobile"`    // users.mobile (nullable)
	Role      Role      `json:"role"`      // users.role
	CreatedAt time.Time `json:"createdAt"` // users.created_at
}
