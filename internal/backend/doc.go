// Package backend provides the plain HTTP calls made before a socket exists.
//
// FetchPTToken returns the pt-token that authorizes the socket together with
// the one-time attestation challenge. Requests carry the merchant API key in
// the x-api-key header and accept a context for cancellation and deadlines.
// Non-2xx statuses are returned as errors with the method, path and status
// text.
package backend
