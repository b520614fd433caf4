package broker

import "errors"

// Domain errors for broker operations. Check them with errors.Is.
var (
	// ErrConnection is returned when the broker cannot be reached within the
	// configured number of attempts. Nothing in a HomeSim process can run
	// without the broker, so callers treat it as fatal.
	ErrConnection = errors.New("broker: connection failed")

	// ErrStreamLost is returned when the connection drops mid-operation.
	// It is recoverable with Session.Reconnect.
	ErrStreamLost = errors.New("broker: stream lost")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("broker: session closed")

	// ErrTimeout is returned when the broker does not acknowledge an
	// operation within the blocked-connection timeout.
	ErrTimeout = errors.New("broker: operation timed out")

	// ErrInvalidExchange is returned for empty or malformed exchange names.
	ErrInvalidExchange = errors.New("broker: invalid exchange name")

	// ErrUnknownExchange is returned when publishing or binding against an
	// exchange that was never declared on the session.
	ErrUnknownExchange = errors.New("broker: exchange not declared")

	// ErrExchangeConflict is returned when an exchange is redeclared with
	// different properties.
	ErrExchangeConflict = errors.New("broker: exchange redeclared with different properties")

	// ErrInvalidRoutingKey is returned for malformed routing keys or patterns.
	ErrInvalidRoutingKey = errors.New("broker: invalid routing key")

	// ErrInvalidQueue is returned for an empty queue name.
	ErrInvalidQueue = errors.New("broker: invalid queue name")

	// ErrPayloadTooLarge is returned when a message exceeds maxPayloadSize.
	ErrPayloadTooLarge = errors.New("broker: payload too large")

	// ErrSubscribeFailed is returned when the broker rejects a subscription.
	ErrSubscribeFailed = errors.New("broker: subscribe failed")

	// ErrUnsubscribeFailed is returned when the broker rejects an unsubscribe.
	ErrUnsubscribeFailed = errors.New("broker: unsubscribe failed")
)
