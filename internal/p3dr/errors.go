package p3dr

import (
	"context"
	"errors"
)

var (
	// ErrConnection marks a failure to establish or keep the server
	// connection. Fatal for the session.
	ErrConnection = errors.New("connection error")

	// ErrTransport marks a failed or timed-out exchange on a live
	// connection. Worth retrying.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks an unexpected or malformed message. Fatal for
	// the session.
	ErrProtocol = errors.New("protocol error")

	// ErrServer marks an error the server reported during the
	// handshake phase.
	ErrServer = errors.New("server error")
)

// Transient reports whether an error is worth retrying on the same
// session. Transport hiccups and timeouts qualify; connection,
// protocol and server verdicts do not.
func Transient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded)
}
