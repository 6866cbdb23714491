package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/compose-backup/internal/archive"
	"github.com/shinji-kodama/compose-backup/internal/compose"
	"github.com/shinji-kodama/compose-backup/internal/docker"
	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/mysql"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// Messages of the fatal precondition failures.
const (
	msgComposeNotFound = "Compose file not found: %s"
	msgConfigFailed    = "Failed to load Compose config (JSON). Ensure Docker and Compose v2 are installed."
	msgNoFilterMatch   = "No matching MySQL services after applying --service filter."
	msgNoServices      = "No MySQL/MariaDB services detected in compose file."
)

// Plan is the set of services a run will process and their containers.
type Plan struct {
	// Services are the MySQL-family services, in Compose order.
	Services []string

	// Containers maps every service in Services to its running containers.
	Containers *model.ContainerMapping
}

// Pipeline performs backups against one Docker host.
type Pipeline struct {
	compose   *compose.Inspector
	resolver  *compose.Resolver
	inspector docker.Inspector
	db        *mysql.Client
	archiver  *archive.Archiver
	log       *logging.Logger
}

// Config holds the collaborators of a Pipeline.
type Config struct {
	// Runner executes docker commands. Required.
	Runner runner.Runner

	// Inspector reads container environments and mounts. Defaults to a
	// CLIInspector on Runner.
	Inspector docker.Inspector

	// Lister backs the label fallback of container resolution. Defaults to
	// a PSLister on Runner.
	Lister compose.ContainerLister

	// Log receives progress messages. Defaults to a no-op logger.
	Log *logging.Logger
}

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	log := cfg.Log
	if log == nil {
		log = logging.NewNop()
	}
	inspector := cfg.Inspector
	if inspector == nil {
		inspector = docker.NewCLIInspector(cfg.Runner)
	}
	lister := cfg.Lister
	if lister == nil {
		lister = compose.NewPSLister(cfg.Runner)
	}

	ci := compose.NewInspector(cfg.Runner)
	return &Pipeline{
		compose:   ci,
		resolver:  compose.NewResolver(ci, lister, log),
		inspector: inspector,
		db:        mysql.NewClient(cfg.Runner),
		archiver:  archive.NewArchiver(cfg.Runner, log),
		log:       log,
	}
}

// Plan loads the Compose file, selects the MySQL-family services and
// resolves their containers. Nothing is written.
//
// Every precondition failure is a *model.CLIError with ExitPrecondition.
// The --service filter is checked before the "no services" case so a
// filter that matches nothing gets its own message.
func (p *Pipeline) Plan(ctx context.Context, composeFile string, only []string) (*Plan, error) {
	if _, err := os.Stat(composeFile); err != nil {
		return nil, model.NewCLIError(model.ExitPrecondition, fmt.Sprintf(msgComposeNotFound, composeFile))
	}

	services, err := p.compose.Config(ctx, composeFile)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitPrecondition, msgConfigFailed, err)
	}

	targets := compose.FindMySQLServices(services)
	if len(only) > 0 {
		targets = compose.FilterServices(targets, only)
		if len(targets) == 0 {
			return nil, model.NewCLIError(model.ExitPrecondition, msgNoFilterMatch)
		}
	}
	if len(targets) == 0 {
		return nil, model.NewCLIError(model.ExitPrecondition, msgNoServices)
	}
	p.log.Debug("MySQL services: %v", targets)

	return &Plan{
		Services:   targets,
		Containers: p.resolver.Resolve(ctx, composeFile, targets),
	}, nil
}

// Run performs a backup with opts and returns its summary.
//
// The output directory is created only after every precondition passed.
// Failures of individual dumps and archives are logged and do not fail
// the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	plan, err := p.Plan(ctx, opts.ComposeFile, opts.Services)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to create output directory", err)
	}

	if opts.CopyCompose {
		p.copyComposeFile(opts.ComposeFile, opts.OutDir)
	}
	if opts.DockerDir != "" {
		p.archiveDockerDir(opts.DockerDir, opts.OutDir)
	}

	r := &run{
		Pipeline: p,
		opts:     opts,
		dbs:      model.NewDedupSet(),
		mounts:   model.NewDedupSet(),
		summary:  newSummary(opts.OutDir),
	}

	for _, svc := range plan.Containers.Services() {
		containers := plan.Containers.Containers(svc)
		if len(containers) == 0 {
			p.log.Warn("No running containers for service '%s'. Is the stack up?", svc)
			continue
		}
		r.summary.add(svc)
		r.dumpDatabases(ctx, svc, containers)
		if opts.ArchiveMounts {
			r.archiveMounts(ctx, svc, containers)
		}
	}
	return r.summary, nil
}

// run holds the per-invocation state of Run.
type run struct {
	*Pipeline
	opts    Options
	dbs     model.DedupSet
	mounts  model.DedupSet
	summary *Summary
}

// containerLog scopes log entries to one container of svc.
func (r *run) containerLog(svc, container string) *logging.Logger {
	return r.log.WithField(logging.FieldService, svc).WithField(logging.FieldContainer, container)
}

func (r *run) dumpDir() string {
	if r.opts.Layout == model.LayoutFlat {
		return r.opts.OutDir
	}
	return filepath.Join(r.opts.OutDir, DatabaseSubdir)
}

// dumpDatabases dumps every user database of every container of svc. A
// database name is recorded only after its dump file was written, so a
// failed dump can still be taken from a later replica.
func (r *run) dumpDatabases(ctx context.Context, svc string, containers []string) {
	dir := r.dumpDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Error("Failed to create %s: %v", dir, err)
		return
	}

	for _, c := range containers {
		log := r.containerLog(svc, c)

		creds, ok := mysql.ResolveCredentials(r.inspector.Env(ctx, c))
		if !ok {
			log.Warn("%s: No MySQL credentials found in environment; skipping.", c)
			continue
		}

		dbs := r.db.ListDatabases(ctx, c, creds)
		if len(dbs) == 0 {
			log.Warn("%s: No user databases found; skipping.", c)
			continue
		}

		for _, db := range dbs {
			if !isSafeFileName(db) {
				log.Error("%s: Unsafe database name '%s'; skipping.", c, db)
				continue
			}
			if r.dbs.Has(db) {
				log.Skip("Duplicate database '%s' already dumped; skipping %s.", db, c)
				continue
			}
			dump := r.db.Dump(ctx, c, db, creds)
			if dump == nil {
				log.Error("%s: Failed to dump %s.", c, db)
				continue
			}
			file := filepath.Join(dir, db+dumpFileExtension)
			if err := os.WriteFile(file, dump, 0o644); err != nil {
				log.Error("%s: Failed to write %s: %v", c, file, err)
				continue
			}
			r.dbs.Add(db)
			r.summary.add(svc, file)
			log.OK("Saved %s -> %s", db, file)
		}
	}
}

// isSafeFileName reports whether name can be used as a single file name
// inside the dump directory.
func isSafeFileName(name string) bool {
	return name != "" && filepath.IsLocal(name) && !strings.ContainsAny(name, `/\`)
}

// archiveMounts archives each distinct volume and bind mount of the
// containers of svc. Other mount types and already archived sources are
// skipped without a message.
func (r *run) archiveMounts(ctx context.Context, svc string, containers []string) {
	dir := filepath.Join(r.opts.OutDir, VolumeSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Error("Failed to create %s: %v", dir, err)
		return
	}

	for _, c := range containers {
		log := r.containerLog(svc, c)
		for _, m := range r.inspector.Mounts(ctx, c) {
			target, ok := archive.TargetFor(m)
			if !ok || r.mounts.Has(target.Key) {
				continue
			}
			data := r.archiver.Archive(ctx, target.SourceSpec)
			if data == nil {
				log.Error("Failed to archive mount (type=%s, name=%s, src=%s)", m.Type, m.Name, m.Source)
				continue
			}
			file := filepath.Join(dir, target.Filename)
			if err := os.WriteFile(file, data, 0o644); err != nil {
				log.Error("Failed to write %s: %v", file, err)
				continue
			}
			r.mounts.Add(target.Key)
			r.summary.add(svc, file)
			log.OK("Saved mount (type=%s) -> %s", m.Type, file)
		}
	}
}

// copyComposeFile keeps a reference copy of the Compose file. Failure is
// only a warning.
func (p *Pipeline) copyComposeFile(src, outDir string) {
	dest := filepath.Join(outDir, ComposeCopyName)
	if err := copyFile(src, dest); err != nil {
		p.log.Warn("Failed to backup compose file: %v", err)
		return
	}
	p.log.OK("Saved compose config -> %s", dest)
}

// archiveDockerDir archives dir into the output root. A missing directory
// is silently ignored.
func (p *Pipeline) archiveDockerDir(dir, outDir string) {
	dest := filepath.Join(outDir, DockerDirArchive)
	size, err := archive.ArchiveDir(dir, dest)
	switch {
	case errors.Is(err, archive.ErrNotExist):
		p.log.Debug("docker directory %s does not exist; skipping", dir)
	case err != nil:
		p.log.Warn("Failed to backup docker directory: %v", err)
	default:
		p.log.OK("Saved docker directory -> %s (%.1f MB)", dest, float64(size)/(1024*1024))
	}
}

// copyFile copies src to dest, keeping the permission bits and the
// modification time.
func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}
