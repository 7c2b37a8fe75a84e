package courier

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("courier: no store configured")
	ErrStoreClosed     = errors.New("courier: store closed")
	ErrMigrationFailed = errors.New("courier: migration failed")

	// Not found errors.
	ErrItemNotFound    = errors.New("courier: item not found")
	ErrDLQNotFound     = errors.New("courier: dlq entry not found")
	ErrBreakerNotFound = errors.New("courier: breaker state not found")
	ErrRecurNotFound   = errors.New("courier: recurring entry not found")

	// Conflict errors.
	ErrItemAlreadyExists = errors.New("courier: item already exists")
	ErrDuplicateRecur    = errors.New("courier: duplicate recurring entry")

	// State errors.
	ErrInvalidState       = errors.New("courier: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("courier: max retries exceeded")
	ErrAlreadyResolved    = errors.New("courier: dlq entry already resolved")

	// Dispatch errors.
	ErrCircuitOpen        = errors.New("courier: circuit open")
	ErrNoAdapter          = errors.New("courier: no adapter registered for platform")
	ErrAdapterUnsupported = errors.New("courier: adapter does not support operation")
	ErrInvalidContent     = errors.New("courier: content failed platform validation")
)
