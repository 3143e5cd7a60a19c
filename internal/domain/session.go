package domain

import "time"

// PTToken is the pre-socket credential returned by the backend together with
// the one-time attestation challenge.
type PTToken struct {
	Token     string `json:"pt-token"`
	Origin    string `json:"origin"`
	Challenge string `json:"challenge"`
}

// Session is the state of one logical socket connection. It is rebuilt from
// scratch on every handshake and never reused.
type Session struct {
	PTToken    string
	Origin     string
	HostToken  string
	SessionKey string
	// PublicKey is the server's box key for this session.
	PublicKey BoxPublic

	ClientPublic  BoxPublic
	ClientPrivate BoxPrivate

	EstablishedAt time.Time
}

// Stale reports whether the session is older than ttl. A zero ttl never expires.
func (s *Session) Stale(now time.Time, ttl time.Duration) bool {
	if s == nil {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.EstablishedAt) > ttl
}
