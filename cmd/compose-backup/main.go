// Package main is the entry point for the compose-backup CLI.
//
// This binary backs up the MySQL/MariaDB databases and volumes of a Docker
// Compose stack. It delegates all functionality to the internal/cli
// package, which defines the cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags.
// During development, they default to "dev", "none", and "unknown".
package main

import (
	"github.com/shinji-kodama/compose-backup/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
