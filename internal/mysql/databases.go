package mysql

import (
	"context"
	"strings"

	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// SystemDatabases are the server-managed schemas that are never dumped.
var SystemDatabases = map[string]struct{}{
	"information_schema": {},
	"performance_schema": {},
	"mysql":              {},
	"sys":                {},
}

// IsSystemDatabase reports whether name is one of SystemDatabases.
func IsSystemDatabase(name string) bool {
	_, ok := SystemDatabases[name]
	return ok
}

// Client runs mysql client programs inside a container.
type Client struct {
	run runner.Runner
}

// NewClient creates a Client that executes through run.
func NewClient(run runner.Runner) *Client {
	return &Client{run: run}
}

// ListDatabases returns the user databases of the server in container, in
// the order the server reports them. Any failure yields an empty list.
func (c *Client) ListDatabases(ctx context.Context, container string, creds model.Credentials) []string {
	args := append(execArgs(container, "mysql", "-N"), authArgs(creds)...)
	args = append(args, "-e", "SHOW DATABASES;")

	res := c.run.Run(ctx, "docker", args...)
	if !res.OK() {
		return nil
	}
	return ParseDatabaseList(string(res.Stdout))
}

// Dump returns the mysqldump output for db, or nil if the dump failed.
//
// The dump uses --single-transaction so InnoDB tables are read from a
// consistent snapshot without locking the live server.
func (c *Client) Dump(ctx context.Context, container, db string, creds model.Credentials) []byte {
	args := append(execArgs(container, "mysqldump",
		"--single-transaction", "--quick", "--lock-tables=false"), authArgs(creds)...)
	args = append(args, db)

	res := c.run.Run(ctx, "docker", args...)
	if !res.OK() {
		return nil
	}
	if res.Stdout == nil {
		return []byte{}
	}
	return res.Stdout
}

// ParseDatabaseList parses `mysql -N -e "SHOW DATABASES;"` output. Lines
// are trimmed, blanks dropped and system databases removed.
func ParseDatabaseList(out string) []string {
	var dbs []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || IsSystemDatabase(name) {
			continue
		}
		dbs = append(dbs, name)
	}
	return dbs
}

func execArgs(container, program string, flags ...string) []string {
	return append([]string{"exec", container, program}, flags...)
}

// authArgs uses the attached -p<password> form; a separate argument would
// make the client prompt for it.
func authArgs(creds model.Credentials) []string {
	return []string{"-u", creds.User, "-p" + creds.Password}
}
