// Package hosttest is a scripted payment host for tests and the payhost
// sandbox server.
//
// Host speaks the socket protocol: it issues pt-tokens and challenges,
// verifies software attestations, answers every action with the matching
// frame, and seals encrypted bodies to the client's session key. It can be
// driven in memory through Pipe, or served over HTTP and WebSocket with
// Handler for end-to-end tests.
package hosttest
