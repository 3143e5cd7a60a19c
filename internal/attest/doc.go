// Package attest provides a software implementation of domain.Attestor.
//
// Software keeps Ed25519 keys in memory and answers Attest with a signed JSON
// statement over the challenge hash. Verify is the matching check, used by the
// fake host in internal/hosttest.
package attest
