package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingUnitID      = errors.New("unit ID is required")
	ErrMissingPath        = errors.New("unit path is required")
	ErrInvalidKind        = errors.New("invalid unit kind")
	ErrEmptyExcerpt       = errors.New("excerpt cannot be empty")
	ErrMissingContentHash = errors.New("content hash is required")
	ErrEmptyQuery         = errors.New("query text cannot be empty")
	ErrInvalidBudget      = errors.New("budget must be positive")
)
