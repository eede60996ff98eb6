// Package cli is the interactive reference client of the token vending
// machine. It registers users, logs the configured device in, keeps the
// issued device key in memory and requests temporary credentials with it.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
