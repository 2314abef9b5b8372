package escrow

import "errors"

// All engine failures are local, synchronous and non-retryable; callers
// correct their arguments and re-invoke.
var (
	// ErrAlreadyConfigured is returned when configuring a pool twice.
	ErrAlreadyConfigured = errors.New("pool already configured")

	// ErrMultiplierTooLow is returned for multipliers below the unit scale.
	ErrMultiplierTooLow = errors.New("multiplier below scale")

	// ErrZeroMaxDuration is returned for a non-positive maximum lock duration.
	ErrZeroMaxDuration = errors.New("max lock duration must be positive")

	// ErrPoolNotConfigured is returned for any operation against a pool
	// that was never configured.
	ErrPoolNotConfigured = errors.New("pool not configured")

	// ErrZeroLock is returned when creating a lock with no balance.
	ErrZeroLock = errors.New("zero lock balance")

	// ErrUnalignedUnlock is returned when an unlock time is not week-aligned.
	ErrUnalignedUnlock = errors.New("unlock time not epoch aligned")

	// ErrLockTooShort is returned when a lock would end too soon.
	ErrLockTooShort = errors.New("lock duration too short")

	// ErrLockTooLong is returned when a lock would outlast the pool maximum.
	ErrLockTooLong = errors.New("lock duration exceeds pool maximum")

	// ErrOnlyExtensions is returned when an extension would shorten a lock.
	ErrOnlyExtensions = errors.New("unlock time can only be extended")

	// ErrNoLockFound is returned when referencing a lock that was never noted.
	ErrNoLockFound = errors.New("no lock found")

	// ErrLockExpired is returned when mutating a lock whose unlock time has
	// already passed.
	ErrLockExpired = errors.New("lock expired")
)
