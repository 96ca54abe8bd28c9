package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinicride/escort-booking/internal/model"
)

// GuardianRepo reads guardian profiles and their preferred hospitals.
type GuardianRepo struct {
	db *sql.DB
}

// NewGuardianRepo constructs a GuardianRepo given a DB handle.
func NewGuardianRepo(db *sql.DB) *GuardianRepo { return &GuardianRepo{db: db} }

// GetByUserID returns the guardian profile owned by userID together with
// its preferred hospital set.  ErrNotFound means the account has no
// guardian profile.
func (r *GuardianRepo) GetByUserID(ctx context.Context, userID string) (*model.Guardian, error) {
	const q = `SELECT g.id, g.user_id, u.full_name, g.verification_status
		FROM guardians g
		JOIN users u ON u.id = g.user_id
		WHERE g.user_id = ?`
	var (
		g      model.Guardian
		status string
	)
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&g.ID, &g.UserID, &g.FullName, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get guardian: %w", err)
	}
	g.VerificationStatus = model.VerificationStatus(status)

	rows, err := r.db.QueryContext(ctx,
		`SELECT hospital_id FROM guardian_preferred_hospitals WHERE guardian_id = ? ORDER BY hospital_id`, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list preferred hospitals: %w", err)
	}
	defer rows.Close()
	g.PreferredHospitals = []string{}
	for rows.Next() {
		var hid string
		if err := rows.Scan(&hid); err != nil {
			return nil, err
		}
		g.PreferredHospitals = append(g.PreferredHospitals, hid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListApprovedForHospital returns every APPROVED guardian whose
// preferred set contains hospitalID.  PreferredHospitals is populated
// with that hospital only, which is all callers need for the audience
// hint.
func (r *GuardianRepo) ListApprovedForHospital(ctx context.Context, hospitalID string) ([]model.Guardian, error) {
	const q = `SELECT g.id, g.user_id, u.full_name, g.verification_status
		FROM guardians g
		JOIN users u ON u.id = g.user_id
		JOIN guardian_preferred_hospitals gph ON gph.guardian_id = g.id
		WHERE g.verification_status = 'APPROVED' AND gph.hospital_id = ?
		ORDER BY g.id`
	rows, err := r.db.QueryContext(ctx, q, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list eligible guardians: %w", err)
	}
	defer rows.Close()
	out := make([]model.Guardian, 0)
	for rows.Next() {
		var (
			g      model.Guardian
			status string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.FullName, &status); err != nil {
			return nil, err
		}
		g.VerificationStatus = model.VerificationStatus(status)
		g.PreferredHospitals = []string{hospitalID}
		out = append(out, g)
	}
	return out, rows.Err()
}

// PatientRepo reads patient profiles.
type PatientRepo struct {
	db *sql.DB
}

// NewPatientRepo constructs a PatientRepo given a DB handle.
func NewPatientRepo(db *sql.DB) *PatientRepo { return &PatientRepo{db: db} }

// GetByUserID returns the patient profile owned by userID or ErrNotFound.
func (r *PatientRepo) GetByUserID(ctx context.Context, userID string) (*model.Patient, error) {
	const q = `SELECT id, user_id, age, gender, emergency_phone FROM patients WHERE user_id = ?`
	var (
		p      model.Patient
		age    sql.NullInt64
		gender sql.NullString
		emerg  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&p.ID, &p.UserID, &age, &gender, &emerg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	p.Gender = nullString(gender)
	p.EmergencyPhone = nullString(emerg)
	return &p, nil
}
