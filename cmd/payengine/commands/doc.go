// Package commands defines the payengine CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - validate card   Check, format and brand a card number and expiry
//   - validate bank   Check a routing and account number
//   - fee             Request a fee quote for a card BIN or ACH
//   - tokenize        Run a payment (card, ACH or cash) end to end
//   - receipts        List the local receipt journal
//
// # Implementation
//
// The root command resolves app.Config and builds the dependency graph
// (logger, metrics, backend client, socket transport, engine) before any
// subcommand runs. Commands that talk to the host connect the engine
// themselves; validate works offline.
package commands
