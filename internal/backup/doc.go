// Package backup runs a complete compose-backup pass.
//
// A Pipeline ties the other packages together:
//
//	compose config -> classify -> resolve containers
//	  -> per container: credentials, list databases, dump
//	  -> per container: archive volume and bind mounts
//	  -> summary
//
// Databases and mounts are deduplicated for the whole run, so replicas of
// a service or several services sharing a volume produce each file once.
// Individual failures are logged and skipped; only missing preconditions
// (no compose file, no MySQL services) abort the run.
package backup
