package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a uniqueness constraint was violated, e.g. a
// duplicate email, tenant slug or session token.
var ErrConflict = errors.New("repository: conflict")
