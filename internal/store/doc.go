// Package store keeps a local, encrypted journal of payment receipts.
//
// The journal is a single JSON file sealed with ChaCha20-Poly1305 under a
// key derived from a passphrase with scrypt. Writes go through a temp file
// and rename, so a crash never leaves a torn journal.
package store
