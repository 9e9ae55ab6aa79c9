package schema

import "errors"

// Common errors returned by coordination operations.
var (
	// ErrComponentAbsent is returned by a VersionSource when the component
	// is not installed or not active. Readers treat it as "omit", not failure.
	ErrComponentAbsent = errors.New("component not present")

	// ErrInvalidDescriptor is returned when a descriptor is missing an ID,
	// has an unknown kind, or has no version source.
	ErrInvalidDescriptor = errors.New("invalid component descriptor")

	// ErrDuplicateComponent is returned when two descriptors share an ID.
	ErrDuplicateComponent = errors.New("duplicate component id")

	// ErrAccessDenied is returned when the access policy rejects a caller.
	ErrAccessDenied = errors.New("access denied")

	// ErrPersistence wraps failures of the options store.
	ErrPersistence = errors.New("persistence failure")

	// ErrHandlerPanic is reported when a reaction handler panics.
	ErrHandlerPanic = errors.New("reaction handler panicked")
)

// IsAbsent returns true if err means the component is simply not there.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrComponentAbsent)
}

// IsPersistence returns true if err came from the options store.
// Persistence failures are logged and retried on the next pass.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
