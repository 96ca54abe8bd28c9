package service

import (
	"context"
	"errors"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/repository"
)

// Account is the caller's own account with whichever profile their role
// has.  A guardian profile is returned in any verification state so the
// client can show "awaiting verification".
type Account struct {
	User     *model.User     `json:"user"`
	Patient  *model.Patient  `json:"patient,omitempty"`
	Guardian *model.Guardian `json:"guardian,omitempty"`
}

// AccountService answers "who am I" for authenticated callers.
type AccountService struct {
	users UserStore
	guard *Guard
}

func NewAccountService(users UserStore, guard *Guard) *AccountService {
	return &AccountService{users: users, guard: guard}
}

// Me loads the caller's account and profile.
func (s *AccountService) Me(ctx context.Context, caller Caller) (*Account, error) {
	u, err := s.users.GetByID(ctx, caller.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, internal("load user", err)
	}
	acct := &Account{User: u}
	switch caller.Role {
	case model.RolePatient:
		acct.Patient, err = s.guard.PatientProfile(ctx, caller.UserID)
	case model.RoleGuardian:
		acct.Guardian, err = s.guard.GuardianProfile(ctx, caller.UserID)
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}
