// Package validate holds the field-level predicates for payment instruments.
//
// The free functions (CardNumberValid, Brand, RoutingValid, ...) are pure and
// safe to call on every keystroke. Validator combines them with struct tags on
// the domain types so a whole Instrument can be checked before it is sent;
// the engine always runs it again regardless of what the caller checked.
package validate
