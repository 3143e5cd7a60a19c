// Package session owns the socket connection lifecycle.
//
// A Manager opens the transport with the pt-token, runs one read loop per
// connection, and hands every inbound frame to the registered FrameHandler
// unless an awaited send is waiting for it. Only one awaited send may be in
// flight; a second one fails fast with ErrAwaitInFlight.
//
// Transport failures reach the ErrorHandler exactly once per connection. A
// deliberate Close is not a failure and is not reported.
package session
