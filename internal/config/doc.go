// Package config loads the run configuration from an HCL file.
//
// The file is decoded with gohcl into the raw attribute set, then resolved
// into a Model: defaults applied, durations parsed and relative paths
// anchored at the directory holding the file. Expressions may call env() to
// read environment variables. Every problem found here is a configuration
// error, reported before any task is scheduled.
package config
