package domain

import "errors"

var (
	// ErrConfiguration marks requests that reference undeclared indexes or
	// carry invalid options. It is never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTypeMismatch marks numeric update operators applied to non-numeric
	// or absent fields. The whole update is aborted.
	ErrTypeMismatch = errors.New("type error")

	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrInvalidQuery  = errors.New("invalid query")
	// ErrConflict marks a conditional write whose table changed after the
	// revision it was based on.
	ErrConflict = errors.New("write conflict")
)
