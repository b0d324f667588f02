// Package ipscerr defines the error taxonomy shared across the IPSC
// packages. Every per-datagram error is recoverable and satisfies
// errors.Is against its sentinel; only FatalInit propagates out of the
// daemon's startup path.
package ipscerr

import "errors"

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", Sentinel)
// at the call site to attach context (opcode, source RadioID, etc.).
var (
	// ErrAuthFailure is returned when an inbound frame's HMAC trailer
	// fails verification.
	ErrAuthFailure = errors.New("ipsc: authentication failure")

	// ErrUnknownSource is returned when an opcode's packet class requires
	// membership (peer, master) the frame's source RadioID lacks.
	ErrUnknownSource = errors.New("ipsc: unknown source for opcode class")

	// ErrUnknownOpcode is returned for an opcode that matches no known
	// packet class, or a malformed body that can't be classified.
	ErrUnknownOpcode = errors.New("ipsc: unknown or malformed opcode")

	// ErrTimeout names the keepalive-timeout kind: a master or peer that
	// crosses its miss-threshold. The maintenance engine does not return
	// it; it reports those transitions through engine.Notifier.
	ErrTimeout = errors.New("ipsc: keepalive timeout")

	// ErrSocketError wraps a UDP socket read failure, which ends the
	// receive loop. Send failures are discarded and never abort a timer
	// tick.
	ErrSocketError = errors.New("ipsc: socket error")

	// ErrFatalInit is returned by System.Start when the system's UDP
	// socket cannot be bound; cmd/ipsclink exits with a nonzero code on
	// it.
	ErrFatalInit = errors.New("ipsc: fatal initialization error")
)
