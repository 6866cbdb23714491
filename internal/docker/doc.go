// Package docker inspects running containers for compose-backup.
//
// This package handles:
//   - Reading a container's environment (for database credentials)
//   - Reading a container's mounts (for volume and bind archiving)
//   - Listing running containers with their Compose labels, for the
//     label-based service fallback
//
// Two backends implement the same Inspector interface. CLIInspector shells
// out to `docker inspect` and is the default. APIInspector talks to the
// Docker Engine API through github.com/docker/docker/client, with socket
// detection and version negotiation handled by Client.
//
// Both backends treat every failure as "nothing found": a container that
// cannot be inspected simply has no credentials and no mounts.
package docker
