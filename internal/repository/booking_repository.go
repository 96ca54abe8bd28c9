package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/clinicride/escort-booking/internal/model"
)

// BookingRepo provides persistence for bookings and their selected
// services.  All timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// Create inserts the booking and one booking_services row per distinct
// service id inside a single transaction.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking, serviceIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO bookings
		(id, hospital_id, patient_id, guardian_id, pickup_type, pickup_lat, pickup_lng, pickup_address,
		 scheduled_at, notes, status, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		b.ID, b.HospitalID, b.PatientID, string(b.PickupType),
		b.PickupLat, b.PickupLng, b.PickupAddress,
		b.ScheduledAt.UTC(), b.Notes, string(b.Status), b.CreatedAt.UTC(), b.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if len(serviceIDs) > 0 {
		query := `INSERT INTO booking_services (booking_id, service_id) VALUES `
		args := make([]interface{}, 0, len(serviceIDs)*2)
		for i, sid := range serviceIDs {
			if i > 0 {
				query += ","
			}
			query += "(?, ?)"
			args = append(args, b.ID, sid)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert booking services: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	committed = true
	return nil
}

// AssignGuardian binds guardianID to a REQUESTED, unassigned booking in
// one conditional UPDATE.  The predicate is evaluated by MySQL under the
// row lock the UPDATE takes, so of any number of concurrent callers at
// most one sees an affected row.  Everyone else gets ErrConflict, which
// also covers cancelled and nonexistent bookings.
func (r *BookingRepo) AssignGuardian(ctx context.Context, bookingID, guardianID string) error {
	const q = `UPDATE bookings
		SET guardian_id = ?, status = 'ACCEPTED', updated_at = UTC_TIMESTAMP(3)
		WHERE id = ? AND status = 'REQUESTED' AND guardian_id IS NULL`
	res, err := r.db.ExecContext(ctx, q, guardianID, bookingID)
	if err != nil {
		return fmt.Errorf("assign guardian: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign guardian rows: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateStatus moves a booking from one status to another.  The current
// status is part of the predicate so two concurrent transitions cannot
// both apply; the loser receives ErrConflict.
func (r *BookingRepo) UpdateStatus(ctx context.Context, bookingID string, from, to model.BookingStatus) error {
	const q = `UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), bookingID, string(from))
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking status rows: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

const detailSelect = `SELECT b.id, b.hospital_id, b.patient_id, b.guardian_id, b.pickup_type,
		b.pickup_lat, b.pickup_lng, b.pickup_address, b.scheduled_at, b.notes, b.status,
		b.created_at, b.updated_at,
		pu.id, pu.full_name, pu.mobile, pu.email, p.age, p.gender, p.emergency_phone,
		g.id, gu.id, gu.full_name, gu.mobile,
		h.name, h.address, h.city, h.is_active
	FROM bookings b
	JOIN patients p ON p.id = b.patient_id
	JOIN users pu ON pu.id = p.user_id
	JOIN hospitals h ON h.id = b.hospital_id
	LEFT JOIN guardians g ON g.id = b.guardian_id
	LEFT JOIN users gu ON gu.id = g.user_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDetail(s rowScanner) (model.BookingDetail, error) {
	var (
		d                             model.BookingDetail
		guardianID, pickupAddr, notes sql.NullString
		lat, lng                      sql.NullFloat64
		pickupType, status            string
		mobile, email, gender, emerg  sql.NullString
		age                           sql.NullInt64
		gID, guID, guName, guMobile   sql.NullString
	)
	err := s.Scan(
		&d.ID, &d.HospitalID, &d.PatientID, &guardianID, &pickupType,
		&lat, &lng, &pickupAddr, &d.ScheduledAt, &notes, &status,
		&d.CreatedAt, &d.UpdatedAt,
		&d.Patient.UserID, &d.Patient.FullName, &mobile, &email, &age, &gender, &emerg,
		&gID, &guID, &guName, &guMobile,
		&d.Hospital.Name, &d.Hospital.Address, &d.Hospital.City, &d.Hospital.IsActive,
	)
	if err != nil {
		return d, err
	}
	d.PickupType = model.PickupType(pickupType)
	d.Status = model.BookingStatus(status)
	d.GuardianID = nullString(guardianID)
	d.PickupLat = nullFloat(lat)
	d.PickupLng = nullFloat(lng)
	d.PickupAddress = nullString(pickupAddr)
	d.Notes = nullString(notes)
	d.ScheduledAt = d.ScheduledAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()

	d.Patient.ID = d.PatientID
	d.Patient.Mobile = nullString(mobile)
	d.Patient.Email = nullString(email)
	d.Patient.Gender = nullString(gender)
	d.Patient.EmergencyPhone = nullString(emerg)
	if age.Valid {
		a := int(age.Int64)
		d.Patient.Age = &a
	}
	if gID.Valid {
		d.Guardian = &model.GuardianSummary{
			ID:       gID.String,
			UserID:   guID.String,
			FullName: guName.String,
			Mobile:   nullString(guMobile),
		}
	}
	d.Hospital.ID = d.HospitalID
	d.Services = []model.Service{}
	return d, nil
}

// GetDetail loads one booking with patient, guardian, hospital, services
// and review.  It returns ErrNotFound when no such booking exists.
func (r *BookingRepo) GetDetail(ctx context.Context, id string) (*model.BookingDetail, error) {
	d, err := scanDetail(r.db.QueryRowContext(ctx, detailSelect+` WHERE b.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	list := []model.BookingDetail{d}
	if err := r.attachServices(ctx, list); err != nil {
		return nil, err
	}
	d = list[0]

	var (
		rev     model.Review
		comment sql.NullString
	)
	err = r.db.QueryRowContext(ctx,
		`SELECT id, booking_id, rating, comment, created_at FROM reviews WHERE booking_id = ?`, id,
	).Scan(&rev.ID, &rev.BookingID, &rev.Rating, &comment, &rev.CreatedAt)
	switch {
	case err == nil:
		rev.Comment = nullString(comment)
		d.Review = &rev
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("get booking review: %w", err)
	}
	return &d, nil
}

// ListPendingForHospitals returns REQUESTED, unassigned bookings at any
// of the given hospitals, soonest scheduledAt first.
func (r *BookingRepo) ListPendingForHospitals(ctx context.Context, hospitalIDs []string) ([]model.BookingDetail, error) {
	if len(hospitalIDs) == 0 {
		return []model.BookingDetail{}, nil
	}
	placeholders := make([]string, len(hospitalIDs))
	args := make([]interface{}, len(hospitalIDs))
	for i, id := range hospitalIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	q := detailSelect + ` WHERE b.status = 'REQUESTED' AND b.guardian_id IS NULL
		AND b.hospital_id IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY b.scheduled_at ASC`
	return r.list(ctx, q, args...)
}

// ListByPatient returns the patient's bookings, newest first.
func (r *BookingRepo) ListByPatient(ctx context.Context, patientID string) ([]model.BookingDetail, error) {
	return r.list(ctx, detailSelect+` WHERE b.patient_id = ? ORDER BY b.created_at DESC`, patientID)
}

// ListByGuardian returns the bookings assigned to a guardian, newest first.
func (r *BookingRepo) ListByGuardian(ctx context.Context, guardianID string) ([]model.BookingDetail, error) {
	return r.list(ctx, detailSelect+` WHERE b.guardian_id = ? ORDER BY b.created_at DESC`, guardianID)
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.BookingDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	out := make([]model.BookingDetail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachServices(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachServices fills Services for every booking with a single query.
func (r *BookingRepo) attachServices(ctx context.Context, details []model.BookingDetail) error {
	if len(details) == 0 {
		return nil
	}
	index := make(map[string]int, len(details))
	ids := make([]interface{}, 0, len(details))
	placeholders := make([]string, 0, len(details))
	for i, d := range details {
		index[d.ID] = i
		ids = append(ids, d.ID)
		placeholders = append(placeholders, "?")
	}
	q := `SELECT bs.booking_id, s.id, s.name, s.description
		FROM booking_services bs
		JOIN services s ON s.id = bs.service_id
		WHERE bs.booking_id IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY bs.booking_id, s.name`
	rows, err := r.db.QueryContext(ctx, q, ids...)
	if err != nil {
		return fmt.Errorf("list booking services: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			bookingID string
			svc       model.Service
			desc      sql.NullString
		)
		if err := rows.Scan(&bookingID, &svc.ID, &svc.Name, &desc); err != nil {
			return fmt.Errorf("scan booking service: %w", err)
		}
		svc.Description = nullString(desc)
		if idx, ok := index[bookingID]; ok {
			details[idx].Services = append(details[idx].Services, svc)
		}
	}
	return rows.Err()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
