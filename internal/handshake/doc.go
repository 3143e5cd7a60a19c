// Package handshake establishes a ready session.
//
// Coordinator.Run walks Unattested → ChallengeRequested → KeyGenerated →
// Attested → HostTokenSent → Ready. The host-token request is the first
// frame on every new socket. Any failure returns a HandshakeFailure, closes
// the socket, and leaves the coordinator Unattested so the next Run starts
// over.
package handshake
