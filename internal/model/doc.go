// Package model defines the domain types and value objects for the
// gitsite CLI.
//
// This package contains pure data structures with no external dependencies.
// DeploymentConfig describes a single site publication; it is built by the
// config package, handed from the execution-root module to the last module
// through the params package, and consumed by the publish package.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
