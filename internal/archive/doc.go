// Package archive produces gzip-compressed tarballs of container storage.
//
// Volume and bind mounts are archived through a short-lived helper
// container that mounts the source read-only at a fixed path and streams a
// tarball to stdout. Reading through a container works for named volumes
// whose data lives inside the Docker VM (Docker Desktop) and for bind
// sources the invoking user cannot read directly.
//
// Host directories (--docker-dir) are archived in process.
package archive
