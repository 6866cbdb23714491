// Package mysql talks to MySQL and MariaDB servers running inside containers.
//
// The servers are never reached over the network. Every statement is run
// through `docker exec` with the client binaries shipped in the official
// images (mysql and mysqldump), using credentials read from the container's
// own environment. This works for any published or unpublished port layout
// and does not require the host to have a MySQL client installed.
//
// This package handles:
//   - Resolving credentials from MYSQL_* / MARIADB_* environment variables
//   - Listing user databases (system schemas are excluded)
//   - Dumping a single database with mysqldump
package mysql
