package telemetry

import "errors"

// Domain errors for telemetry. Check them with errors.Is.
var (
	// ErrMalformedMessage is returned for a body that cannot be decoded into
	// a device message. Under DropOnFailure such messages are logged,
	// acknowledged and dropped.
	ErrMalformedMessage = errors.New("telemetry: malformed message")

	// ErrUnknownQueue is returned when changing a queue the consumer does
	// not have.
	ErrUnknownQueue = errors.New("telemetry: unknown queue")

	// ErrAlreadyStarted is returned by a second call to Consumer.Start.
	ErrAlreadyStarted = errors.New("telemetry: consumer already started")

	// ErrNoHandler is returned when a consumer is created without a handler.
	ErrNoHandler = errors.New("telemetry: handler is required")
)
