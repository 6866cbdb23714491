package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

const tarScript = "tar -C /_backup_src -czf - . || (echo 'tar failed' >&2; exit 1)"

// fixture is a scripted Docker host with a compose file on disk.
type fixture struct {
	compose string
	out     string
	fake    *runner.Fake
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, configJSON string) *fixture {
	t.Helper()

	dir := t.TempDir()
	composeFile := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(composeFile, []byte("services: {}\n"), 0o644))

	f := &fixture{
		compose: composeFile,
		out:     filepath.Join(dir, "backups"),
		fake:    runner.NewFake(),
		logs:    &bytes.Buffer{},
	}
	f.fake.OnOutput(configJSON, "docker", "compose", "-f", composeFile, "config", "--format", "json")
	return f
}

func (f *fixture) ps(out string) *fixture {
	f.fake.OnOutput(out, "docker", "compose", "-f", f.compose, "ps", "--format", "json")
	return f
}

func (f *fixture) env(container, envJSON string) *fixture {
	f.fake.OnOutput(envJSON, "docker", "inspect", "--format", "{{json .Config.Env}}", container)
	return f
}

func (f *fixture) mounts(container, mountsJSON string) *fixture {
	f.fake.OnOutput(mountsJSON, "docker", "inspect", "--format", "{{json .Mounts}}", container)
	return f
}

func (f *fixture) databases(container, out string) *fixture {
	f.fake.OnOutput(out, "docker", "exec", container, "mysql", "-N", "-u", "root", "-pr", "-e", "SHOW DATABASES;")
	return f
}

func (f *fixture) dump(container, db, sql string) *fixture {
	f.fake.OnOutput(sql, "docker", "exec", container, "mysqldump", "--single-transaction", "--quick",
		"--lock-tables=false", "-u", "root", "-pr", db)
	return f
}

func (f *fixture) helper(spec, image, data string) *fixture {
	f.fake.OnOutput(data, "docker", "run", "--rm", "-v", spec, image, "sh", "-c", tarScript)
	return f
}

func (f *fixture) pipeline() *Pipeline {
	return New(Config{
		Runner: f.fake,
		Log:    logging.New(logging.Config{Output: f.logs, NoColor: true}),
	})
}

func (f *fixture) run(opts Options) (*Summary, error) {
	return f.pipeline().Run(context.Background(), opts)
}

func (f *fixture) full() Options {
	return FullOptions(f.compose, f.out)
}

const shopConfig = `{
  "name": "shop",
  "services": {
    "web": {"image": "nginx:1.27"},
    "db": {"image": "mysql:8.4", "environment": {"MYSQL_ROOT_PASSWORD": "r"}}
  }
}`

func TestRun_DedupAcrossReplicas(t *testing.T) {
	f := newFixture(t, shopConfig).
		ps(`[{"Service":"db","Name":"shop-db-1"},{"Service":"db","Name":"shop-db-2"},{"Service":"web","Name":"shop-web-1"}]`).
		env("shop-db-1", `["MYSQL_ROOT_PASSWORD=r"]`).
		env("shop-db-2", `["MYSQL_ROOT_PASSWORD=r"]`).
		databases("shop-db-1", "information_schema\nmysql\nappdb\n").
		databases("shop-db-2", "information_schema\nmysql\nappdb\n").
		dump("shop-db-1", "appdb", "-- appdb dump\n").
		mounts("shop-db-1", `[{"Type":"volume","Name":"shop_dbdata","Destination":"/var/lib/mysql"}]`).
		mounts("shop-db-2", `[{"Type":"volume","Name":"shop_dbdata","Destination":"/var/lib/mysql"},{"Type":"tmpfs","Destination":"/tmp"}]`).
		helper("shop_dbdata:/_backup_src", "busybox", "TARBALL")

	summary, err := f.run(f.full())
	require.NoError(t, err)

	dump := filepath.Join(f.out, "db", "appdb.sql")
	volume := filepath.Join(f.out, "volumes", "volume__shop_dbdata.tar.gz")
	assert.Equal(t, []ServiceFiles{{Name: "db", Files: []string{dump, volume}}}, summary.Services)

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Equal(t, "-- appdb dump\n", string(data))
	assert.FileExists(t, volume)
	assert.FileExists(t, filepath.Join(f.out, "docker-compose.yml"))

	dumpArgs := []string{"exec", "shop-db-2", "mysqldump", "--single-transaction", "--quick", "--lock-tables=false", "-u", "root", "-pr", "appdb"}
	assert.Equal(t, 0, f.fake.Called("docker", dumpArgs...), "second replica must not be dumped")
	assert.Equal(t, 1, f.fake.Called("docker", "run", "--rm", "-v", "shop_dbdata:/_backup_src", "busybox", "sh", "-c", tarScript))

	logs := f.logs.String()
	assert.Contains(t, logs, "[SKIP] Duplicate database 'appdb' already dumped; skipping shop-db-2.")
	assert.Contains(t, logs, "[OK] Saved appdb -> "+dump)
	assert.Contains(t, logs, "[OK] Saved mount (type=volume) -> "+volume)
}

func TestRun_ServiceFilterMatchesNothing(t *testing.T) {
	f := newFixture(t, `{"services":{"web":{"image":"nginx"}}}`)

	opts := f.full()
	opts.Services = []string{"nonexistent"}
	_, err := f.run(opts)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitPrecondition, cliErr.Code)
	assert.Equal(t, "No matching MySQL services after applying --service filter.", cliErr.Message)
	assert.NoDirExists(t, f.out, "nothing is written on a fatal error")
}

func TestRun_NoMySQLServices(t *testing.T) {
	f := newFixture(t, `{"services":{"web":{"image":"nginx"},"cache":{"image":"redis"}}}`)

	_, err := f.run(f.full())

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitPrecondition, cliErr.Code)
	assert.Equal(t, "No MySQL/MariaDB services detected in compose file.", cliErr.Message)
	assert.NoDirExists(t, f.out)
}

func TestRun_ComposeFileMissing(t *testing.T) {
	f := newFixture(t, shopConfig)

	opts := f.full()
	opts.ComposeFile = filepath.Join(t.TempDir(), "missing.yml")
	_, err := f.run(opts)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitPrecondition, cliErr.Code)
	assert.Equal(t, "Compose file not found: "+opts.ComposeFile, cliErr.Message)
	assert.Empty(t, f.fake.Calls, "docker is not called without a compose file")
}

func TestRun_ComposeConfigFails(t *testing.T) {
	f := newFixture(t, shopConfig)
	f.fake.OnFailure("docker", "compose", "-f", f.compose, "config", "--format", "json")

	_, err := f.run(f.full())

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitPrecondition, cliErr.Code)
	assert.Contains(t, cliErr.Message, "Failed to load Compose config (JSON)")
	assert.Error(t, cliErr.Err)
}

func TestRun_NoRunningContainers(t *testing.T) {
	f := newFixture(t, shopConfig)
	f.fake.OnFailure("docker", "compose", "-f", f.compose, "ps", "--format", "json")
	f.fake.OnOutput("", "docker", "ps", "--format", "{{json .}}")

	summary, err := f.run(f.full())
	require.NoError(t, err)

	assert.Empty(t, summary.Services)
	assert.Contains(t, f.logs.String(), "[WARN] No running containers for service 'db'. Is the stack up?")
	assert.DirExists(t, f.out)
	assert.NoDirExists(t, filepath.Join(f.out, "db"))
	assert.NoDirExists(t, filepath.Join(f.out, "volumes"))
}

func TestRun_LabelFallback(t *testing.T) {
	f := newFixture(t, shopConfig).
		env("legacy-db", `["MYSQL_ROOT_PASSWORD=r"]`).
		databases("legacy-db", "shop\n").
		dump("legacy-db", "shop", "-- shop\n").
		mounts("legacy-db", `[]`)
	f.fake.OnFailure("docker", "compose", "-f", f.compose, "ps", "--format", "json")
	f.fake.OnOutput(`{"Names":"legacy-db","Labels":"com.docker.compose.project=shop,com.docker.compose.service=db"}`+"\n",
		"docker", "ps", "--format", "{{json .}}")

	summary, err := f.run(f.full())
	require.NoError(t, err)

	require.Len(t, summary.Services, 1)
	assert.Equal(t, []string{filepath.Join(f.out, "db", "shop.sql")}, summary.Services[0].Files)
}

func TestRun_DatabasesOnlyLayout(t *testing.T) {
	f := newFixture(t, shopConfig).
		ps(`{"Service":"db","Name":"shop-db-1"}`+"\n").
		env("shop-db-1", `["MYSQL_ROOT_PASSWORD=r"]`).
		databases("shop-db-1", "appdb\n").
		dump("shop-db-1", "appdb", "-- appdb\n")

	summary, err := f.run(DatabasesOnlyOptions(f.compose, f.out))
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(f.out, "appdb.sql")}, summary.files())
	assert.FileExists(t, filepath.Join(f.out, "appdb.sql"))
	assert.NoFileExists(t, filepath.Join(f.out, "docker-compose.yml"))
	assert.NoDirExists(t, filepath.Join(f.out, "volumes"))
	assert.Equal(t, 0, f.fake.Called("docker", "inspect", "--format", "{{json .Mounts}}", "shop-db-1"))
}

func TestRun_RecoverableFailures(t *testing.T) {
	config := `{"services":{
	  "db": {"image": "mariadb:11"},
	  "legacy": {"image": "mysql:5.7"}
	}}`
	f := newFixture(t, config).
		ps(`[{"Service":"db","Name":"shop-db-1"},{"Service":"legacy","Name":"shop-legacy-1"}]`).
		env("shop-db-1", `["MARIADB_ROOT_PASSWORD=r"]`).
		env("shop-legacy-1", `["TZ=UTC"]`).
		databases("shop-db-1", "appdb\nbroken\n").
		dump("shop-db-1", "appdb", "-- appdb\n").
		mounts("shop-db-1", `[{"Type":"bind","Source":"/data/my app!","Destination":"/data"},{"Type":"volume","Name":"unreadable","Destination":"/x"}]`).
		helper("/data/my app!:/_backup_src", "busybox", "BIND").
		mounts("shop-legacy-1", `[]`)
	f.fake.OnFailure("docker", "exec", "shop-db-1", "mysqldump", "--single-transaction", "--quick",
		"--lock-tables=false", "-u", "root", "-pr", "broken")
	f.fake.OnFailure("docker", "run", "--rm", "-v", "unreadable:/_backup_src", "busybox", "sh", "-c", tarScript)
	f.fake.OnFailure("docker", "run", "--rm", "-v", "unreadable:/_backup_src", "alpine", "sh", "-c", tarScript)

	summary, err := f.run(f.full())
	require.NoError(t, err)

	assert.Equal(t, []ServiceFiles{
		{Name: "db", Files: []string{
			filepath.Join(f.out, "db", "appdb.sql"),
			filepath.Join(f.out, "volumes", "bind__data_my_app.tar.gz"),
		}},
		{Name: "legacy", Files: []string{}},
	}, summary.Services)

	logs := f.logs.String()
	assert.Contains(t, logs, "[ERROR] shop-db-1: Failed to dump broken.")
	assert.Contains(t, logs, "[ERROR] Failed to archive mount (type=volume, name=unreadable, src=)")
	assert.Contains(t, logs, "[WARN] shop-legacy-1: No MySQL credentials found in environment; skipping.")
	assert.NoFileExists(t, filepath.Join(f.out, "db", "broken.sql"))
}

func TestRun_NoUserDatabases(t *testing.T) {
	f := newFixture(t, shopConfig).
		ps(`[{"Service":"db","Name":"shop-db-1"}]`).
		env("shop-db-1", `["MYSQL_ROOT_PASSWORD=r"]`).
		databases("shop-db-1", "information_schema\nmysql\nperformance_schema\nsys\n").
		mounts("shop-db-1", `[]`)

	_, err := f.run(f.full())
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "[WARN] shop-db-1: No user databases found; skipping.")
}

func TestRun_UnsafeDatabaseName(t *testing.T) {
	f := newFixture(t, shopConfig).
		ps(`[{"Service":"db","Name":"shop-db-1"}]`).
		env("shop-db-1", `["MYSQL_ROOT_PASSWORD=r"]`).
		databases("shop-db-1", "../escape\nback\\slash\nappdb\n").
		dump("shop-db-1", "../escape", "-- escape\n").
		dump("shop-db-1", `back\slash`, "-- backslash\n").
		dump("shop-db-1", "appdb", "-- appdb\n").
		mounts("shop-db-1", `[]`)

	summary, err := f.run(f.full())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(f.out, "db", "appdb.sql")}, summary.files())
	assert.NoFileExists(t, filepath.Join(f.out, "escape.sql"))

	logs := f.logs.String()
	assert.Contains(t, logs, "[ERROR] shop-db-1: Unsafe database name '../escape'; skipping.")
	assert.Contains(t, logs, `[ERROR] shop-db-1: Unsafe database name 'back\slash'; skipping.`)
	assert.Zero(t, f.fake.Called("docker", "exec", "shop-db-1", "mysqldump", "--single-transaction", "--quick",
		"--lock-tables=false", "-u", "root", "-pr", "../escape"), "unsafe names are not dumped")
}

func TestRun_JSONLogsCarryContainer(t *testing.T) {
	f := newFixture(t, shopConfig).
		ps(`[{"Service":"db","Name":"shop-db-1"}]`).
		env("shop-db-1", `["MYSQL_ROOT_PASSWORD=r"]`).
		databases("shop-db-1", "appdb\n").
		dump("shop-db-1", "appdb", "-- appdb\n").
		mounts("shop-db-1", `[]`)

	p := New(Config{
		Runner: f.fake,
		Log:    logging.New(logging.Config{Output: f.logs, Format: logging.FormatJSON}),
	})
	_, err := p.Run(context.Background(), f.full())
	require.NoError(t, err)

	var saved map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(f.logs.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry[logging.FieldTag] == logging.TagOK {
			saved = entry
		}
	}
	require.NotNil(t, saved, "an OK entry is logged for the dump")
	assert.Equal(t, "db", saved[logging.FieldService])
	assert.Equal(t, "shop-db-1", saved[logging.FieldContainer])
}

func TestRun_DockerDir(t *testing.T) {
	dockerDir := filepath.Join(t.TempDir(), "docker")
	require.NoError(t, os.MkdirAll(dockerDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dockerDir, "README"), []byte("hi"), 0o644))

	f := newFixture(t, shopConfig).ps(`[]`)
	f.fake.OnOutput("", "docker", "ps", "--format", "{{json .}}")

	opts := f.full()
	opts.DockerDir = dockerDir
	summary, err := f.run(opts)
	require.NoError(t, err)

	archivePath := filepath.Join(f.out, "docker-dir.tar.gz")
	assert.FileExists(t, archivePath)
	assert.Contains(t, f.logs.String(), "[OK] Saved docker directory -> "+archivePath+" (")
	assert.NotContains(t, summary.files(), archivePath, "auxiliary archives are not part of the summary")
}

func TestRun_DockerDirMissing(t *testing.T) {
	f := newFixture(t, shopConfig).ps(`[]`)
	f.fake.OnOutput("", "docker", "ps", "--format", "{{json .}}")

	opts := f.full()
	opts.DockerDir = filepath.Join(t.TempDir(), "absent")
	_, err := f.run(opts)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(f.out, "docker-dir.tar.gz"))
	assert.NotContains(t, f.logs.String(), "docker directory")
}

func TestPlan(t *testing.T) {
	config := `{"services":{
	  "primary": {"image": "mysql:8"},
	  "web": {"image": "nginx"},
	  "replica": {"image": "bitnami/mariadb"},
	  "custom": {"image": "acme/db", "environment": ["MYSQL_DATABASE=app"]}
	}}`
	f := newFixture(t, config).
		ps(`[{"Service":"replica","Name":"shop-replica-1"}]`)
	f.fake.OnOutput("", "docker", "ps", "--format", "{{json .}}")

	plan, err := f.pipeline().Plan(context.Background(), f.compose, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"primary", "replica", "custom"}, plan.Services)
	assert.Equal(t, []string{"shop-replica-1"}, plan.Containers.Containers("replica"))
	assert.Empty(t, plan.Containers.Containers("primary"))

	filtered, err := f.pipeline().Plan(context.Background(), f.compose, []string{"custom", "web"})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, filtered.Services)
}
