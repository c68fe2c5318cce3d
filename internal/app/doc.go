// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the commands it can run (serve, solve, xi,
// graph export and replay, watch), decoupled from any specific entrypoint
// like a CLI.
package app
