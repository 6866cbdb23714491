// Package model defines the domain types and value objects for the
// compose-backup CLI.
//
// This package contains pure data structures with no external dependencies.
// ServiceConfig, Mount, ContainerMapping and DedupSet are transient values
// built from docker CLI output during a single run.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
