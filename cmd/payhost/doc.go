// Package main runs an in-memory payment host for local development and
// manual testing of the payengine CLI.
//
// HTTP API
//
//	GET /pt-token
//	    Return {"pt-token", "origin", "challenge"} for a new handshake.
//
//	GET /socket?pt_token=...
//	    Upgrade to a websocket speaking the host frame protocol:
//	    host:hostToken, host:calculateFee, host:ptInstrument,
//	    host:idempotency, host:transfer and host:tokenize.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Attestation statements are verified against the issued challenge.
//   - Fee quotes and the transfer state are set with flags.
//   - A lightweight access log records method, path, remote, status, bytes and
//     duration for each request.
//   - The default listen address is :8080.
//
// Point the CLI at it with --api-url http://127.0.0.1:8080 and
// --socket-url ws://127.0.0.1:8080/socket.
package main
