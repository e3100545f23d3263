// Package p3dr speaks the registration server protocol: size-tagged
// message envelopes over TCP. A Client handles the synchronous
// handshake phase (version query, stream setup); a Session then owns
// the socket and multiplexes asynchronous registration requests and
// their out-of-order responses.
//
// The package can also launch a private server process and tear it
// down with the connection.
package p3dr
