// Package transport provides the socket implementation of domain.Transport
// over gorilla/websocket.
//
// A WebSocket carries one connection at a time. Reads do not observe context
// cancellation beyond its deadline; the session manager unblocks a pending
// Receive by calling Close.
package transport
