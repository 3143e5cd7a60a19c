// Package domain defines core data models and interfaces shared across the engine.
// It contains plain types (instruments, session state, results, wire payloads),
// the error taxonomy, and contracts for injected collaborators only.
package domain
