// Package compose reads a Docker Compose project through the docker CLI and
// works out which services are MySQL-family databases and which running
// containers back them.
//
// This package handles:
//   - Loading the normalized service configuration
//     (`docker compose config --format json`) in document order
//   - Listing the project's containers (`docker compose ps --format json`)
//   - Classifying services as MySQL/MariaDB by image or environment
//   - Mapping services to containers, with a label-based fallback over
//     every running container when Compose does not report them
//
// The compose file is never parsed directly. Compose itself resolves
// includes, profiles, variable interpolation and env files, and this
// package consumes its normalized output.
package compose
