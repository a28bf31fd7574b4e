// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: processing every tile,
// persisting the routing index and failure report, and building the
// catalog. It is decoupled from any specific entrypoint like a CLI.
package app
