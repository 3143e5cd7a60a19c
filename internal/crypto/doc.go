// Package crypto exposes the minimal primitives used by the engine.
//
// Contents
//
//   - SHA-256 digest of the attestation challenge (Digest)
//   - Per-session X25519 box key pairs (GenerateBoxKeyPair, ParseBoxPublic)
//   - NaCl box sealing and opening of message bodies (Seal, Open)
//   - Best-effort wiping of opened plaintext and unused keys (Wipe, WipeKey)
//   - Short public-key fingerprints for logging (Fingerprint)
//   - Base64 helpers (B64, FromB64)
//
// # Notes
//
// Keys use the fixed-size array types defined in internal/domain. Plaintext
// returned by Open is owned by the caller, who should wipe it with
// Wipe once it has been decoded. Nothing in this package logs.
package crypto
