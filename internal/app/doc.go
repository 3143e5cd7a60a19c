// Package app wires application dependencies for the CLI.
//
// LoadConfig resolves Config from flags, PAYENGINE_* environment variables
// and an optional config file. NewWire builds the logger, metrics, backend
// client, socket transport and engine from it, exposing them via the Wire
// struct for commands to use.
package app
