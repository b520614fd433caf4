package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrClassChanged) {
//	    // telemetry tried to reclassify a known device
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidRecord is returned when a patch fails validation.
	ErrInvalidRecord = errors.New("device: invalid record")

	// ErrClassChanged is returned when a patch tries to change the kind or
	// subtype of a registered device.
	ErrClassChanged = errors.New("device: kind/subtype cannot change")

	// ErrInvalidSubtype is returned when a subtype value is not recognised.
	ErrInvalidSubtype = errors.New("device: invalid subtype")

	// ErrInvalidState is returned when a state is not valid for the subtype.
	ErrInvalidState = errors.New("device: invalid state")
)
