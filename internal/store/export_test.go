package store

// FastKDF lowers the scrypt cost for tests.
func (s *Receipts) FastKDF() { s.kdf = kdfParams{N: 1 << 10, R: 8, P: 1} }
