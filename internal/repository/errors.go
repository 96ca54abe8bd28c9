// Package repository defines the MySQL data access layer and the
// sentinel errors shared by every repository.  Callers distinguish
// failure scenarios with errors.Is; driver errors are wrapped.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist (or,
// for catalog lookups, exists but is inactive).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched zero rows
// because another writer changed the row first.  For the guardian
// assignment this is the normal outcome of losing the race.
var ErrConflict = errors.New("conflict")
