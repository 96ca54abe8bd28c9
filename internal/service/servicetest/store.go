// Package servicetest provides an in-memory implementation of the
// service storage interfaces for tests.  All state sits behind one
// mutex, so AssignGuardian and UpdateStatus are genuinely atomic
// compare-and-swaps and can be raced from many goroutines.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/queue"
	"github.com/clinicride/escort-booking/internal/repository"
)

type user struct {
	id       string
	fullName string
	mobile   string
	role     model.Role
}

type bookingRow struct {
	booking  model.Booking
	services []string
}

// Store is an in-memory bookings, profiles and catalog database.
type Store struct {
	mu        sync.Mutex
	users     map[string]user
	patients  map[string]model.Patient  // by profile id
	guardians map[string]model.Guardian // by profile id
	hospitals map[string]model.Hospital
	services  map[string]model.Service
	bookings  map[string]*bookingRow
	reviews   map[string]model.Review

	// Err, when set, is returned by every read and write.
	Err error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:     map[string]user{},
		patients:  map[string]model.Patient{},
		guardians: map[string]model.Guardian{},
		hospitals: map[string]model.Hospital{},
		services:  map[string]model.Service{},
		bookings:  map[string]*bookingRow{},
		reviews:   map[string]model.Review{},
	}
}

// AddHospital inserts a hospital and returns it.
func (s *Store) AddHospital(name string, active bool) model.Hospital {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := model.Hospital{ID: uuid.NewString(), Name: name, Address: name + " Road", City: "Bangkok", IsActive: active}
	s.hospitals[h.ID] = h
	return h
}

// AddService inserts a catalog service and returns it.
func (s *Store) AddService(name string) model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc := model.Service{ID: uuid.NewString(), Name: name}
	s.services[svc.ID] = svc
	return svc
}

// AddPatient creates a user with a patient profile.
func (s *Store) AddPatient(name string) model.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.addUser(name, model.RolePatient)
	phone := "0800000000"
	p := model.Patient{ID: uuid.NewString(), UserID: u.id, EmergencyPhone: &phone}
	s.patients[p.ID] = p
	return p
}

// AddGuardian creates a user with a guardian profile.
func (s *Store) AddGuardian(name string, status model.VerificationStatus, hospitalIDs ...string) model.Guardian {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.addUser(name, model.RoleGuardian)
	g := model.Guardian{
		ID:                 uuid.NewString(),
		UserID:             u.id,
		FullName:           name,
		VerificationStatus: status,
		PreferredHospitals: append([]string{}, hospitalIDs...),
	}
	s.guardians[g.ID] = g
	return g
}

// AddUser creates a DOCTOR account with no profile.
func (s *Store) AddUser(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUser(name, model.RoleDoctor).id
}

func (s *Store) addUser(name string, role model.Role) user {
	u := user{id: uuid.NewString(), fullName: name, mobile: "0811111111", role: role}
	s.users[u.id] = u
	return u
}

// Booking returns the stored row for id.
func (s *Store) Booking(id string) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, false
	}
	return row.booking, true
}

// PutBooking stores b as is, bypassing the lifecycle.
func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = &bookingRow{booking: b}
}

// Patients returns the PatientStore view.
func (s *Store) Patients() PatientView { return PatientView{s} }

// Guardians returns the GuardianStore view.
func (s *Store) Guardians() GuardianView { return GuardianView{s} }

// Users returns the UserStore view.
func (s *Store) Users() UserView { return UserView{s} }

// Create implements service.BookingStore.
func (s *Store) Create(_ context.Context, b *model.Booking, serviceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.bookings[b.ID] = &bookingRow{booking: *b, services: append([]string{}, serviceIDs...)}
	return nil
}

// AssignGuardian implements service.BookingStore.
func (s *Store) AssignGuardian(_ context.Context, bookingID, guardianID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	row, ok := s.bookings[bookingID]
	if !ok || row.booking.Status != model.StatusRequested || row.booking.GuardianID != nil {
		return repository.ErrConflict
	}
	gid := guardianID
	row.booking.GuardianID = &gid
	row.booking.Status = model.StatusAccepted
	row.booking.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus implements service.BookingStore.
func (s *Store) UpdateStatus(_ context.Context, bookingID string, from, to model.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	row, ok := s.bookings[bookingID]
	if !ok || row.booking.Status != from {
		return repository.ErrConflict
	}
	row.booking.Status = to
	row.booking.UpdatedAt = time.Now().UTC()
	return nil
}

// GetDetail implements service.BookingStore.
func (s *Store) GetDetail(_ context.Context, id string) (*model.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	row, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d := s.detail(row)
	return &d, nil
}

// ListPendingForHospitals implements service.BookingStore.
func (s *Store) ListPendingForHospitals(_ context.Context, hospitalIDs []string) ([]model.BookingDetail, error) {
	want := make(map[string]bool, len(hospitalIDs))
	for _, id := range hospitalIDs {
		want[id] = true
	}
	out := s.filter(func(b model.Booking) bool {
		return b.Status == model.StatusRequested && b.GuardianID == nil && want[b.HospitalID]
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, s.Err
}

// ListByPatient implements service.BookingStore.
func (s *Store) ListByPatient(_ context.Context, patientID string) ([]model.BookingDetail, error) {
	out := s.filter(func(b model.Booking) bool { return b.PatientID == patientID })
	newestFirst(out)
	return out, s.Err
}

// ListByGuardian implements service.BookingStore.
func (s *Store) ListByGuardian(_ context.Context, guardianID string) ([]model.BookingDetail, error) {
	out := s.filter(func(b model.Booking) bool { return b.GuardianID != nil && *b.GuardianID == guardianID })
	newestFirst(out)
	return out, s.Err
}

func newestFirst(list []model.BookingDetail) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func (s *Store) filter(keep func(model.Booking) bool) []model.BookingDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BookingDetail, 0)
	for _, row := range s.bookings {
		if keep(row.booking) {
			out = append(out, s.detail(row))
		}
	}
	return out
}

func (s *Store) detail(row *bookingRow) model.BookingDetail {
	d := model.BookingDetail{Booking: row.booking, Services: []model.Service{}}
	if p, ok := s.patients[row.booking.PatientID]; ok {
		u := s.users[p.UserID]
		mobile := u.mobile
		d.Patient = model.PatientSummary{
			ID: p.ID, UserID: p.UserID, FullName: u.fullName, Mobile: &mobile,
			Age: p.Age, Gender: p.Gender, EmergencyPhone: p.EmergencyPhone,
		}
	}
	if row.booking.GuardianID != nil {
		if g, ok := s.guardians[*row.booking.GuardianID]; ok {
			mobile := s.users[g.UserID].mobile
			d.Guardian = &model.GuardianSummary{ID: g.ID, UserID: g.UserID, FullName: g.FullName, Mobile: &mobile}
		}
	}
	d.Hospital = s.hospitals[row.booking.HospitalID]
	for _, sid := range row.services {
		d.Services = append(d.Services, s.services[sid])
	}
	if r, ok := s.reviews[row.booking.ID]; ok {
		d.Review = &r
	}
	return d
}

// GetActiveHospital implements service.Catalog.
func (s *Store) GetActiveHospital(_ context.Context, id string) (*model.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	h, ok := s.hospitals[id]
	if !ok || !h.IsActive {
		return nil, repository.ErrNotFound
	}
	return &h, nil
}

// ListActiveHospitals implements service.Catalog.
func (s *Store) ListActiveHospitals(context.Context) ([]model.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Hospital, 0, len(s.hospitals))
	for _, h := range s.hospitals {
		if h.IsActive {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, s.Err
}

// ListServices implements service.Catalog.
func (s *Store) ListServices(context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, s.Err
}

// ServicesByIDs implements service.Catalog.
func (s *Store) ServicesByIDs(_ context.Context, ids []string) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Service, 0, len(ids))
	for _, id := range ids {
		if svc, ok := s.services[id]; ok {
			out = append(out, svc)
		}
	}
	return out, s.Err
}

// PatientView adapts Store to service.PatientStore.
type PatientView struct{ s *Store }

// GetByUserID implements service.PatientStore.
func (v PatientView) GetByUserID(_ context.Context, userID string) (*model.Patient, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	for _, p := range v.s.patients {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GuardianView adapts Store to service.GuardianStore.
type GuardianView struct{ s *Store }

// GetByUserID implements service.GuardianStore.
func (v GuardianView) GetByUserID(_ context.Context, userID string) (*model.Guardian, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	for _, g := range v.s.guardians {
		if g.UserID == userID {
			g.PreferredHospitals = append([]string{}, g.PreferredHospitals...)
			return &g, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListApprovedForHospital implements service.GuardianStore.
func (v GuardianView) ListApprovedForHospital(_ context.Context, hospitalID string) ([]model.Guardian, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	out := make([]model.Guardian, 0)
	for _, g := range v.s.guardians {
		if g.Approved() && g.Prefers(hospitalID) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UserView adapts Store to service.UserStore.
type UserView struct{ s *Store }

// GetByID implements service.UserStore.
func (v UserView) GetByID(_ context.Context, id string) (*model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	u, ok := v.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	mobile := u.mobile
	return &model.User{ID: u.id, FullName: u.fullName, Mobile: &mobile, Role: u.role}, nil
}

// Events records published booking events.
type Events struct {
	mu   sync.Mutex
	list []queue.BookingEvent
}

// Publish implements queue.Sink.
func (e *Events) Publish(_ context.Context, ev queue.BookingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, ev)
}

// All returns a copy of the recorded events in publish order.
func (e *Events) All() []queue.BookingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]queue.BookingEvent(nil), e.list...)
}
