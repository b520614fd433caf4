package dispatch

import "errors"

// Dispatch failures. Send folds them into a Result; Result.Err carries the
// sentinel for errors.Is.
var (
	ErrUnsupportedSubtype = errors.New("dispatch: unsupported subtype")
	ErrUnsupportedAction  = errors.New("dispatch: unsupported action")
	ErrInvalidParameter   = errors.New("dispatch: invalid parameter")
	ErrNoEndpoint         = errors.New("dispatch: no rpc endpoint")
	ErrTransport          = errors.New("dispatch: transport failure")
	ErrRejected           = errors.New("dispatch: rejected by actuator")
	ErrInFlight           = errors.New("dispatch: already in flight")
)
