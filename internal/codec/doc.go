// Package codec converts between engine values and socket frames.
//
// Outbound actions are wrapped as {"action": name, "encoded": base64(JSON)}.
// A few legacy actions are sent raw, with the payload fields inlined next to
// "action". Instrument data is never placed in "encoded" directly: it is
// sealed to the server's session key first (see Seal).
//
// Inbound frames go through Parse, which classifies them by "type", surfaces
// "error" arrays, and opens encrypted bodies. Decode then maps the untyped
// body onto the typed variant registered for that type.
package codec
