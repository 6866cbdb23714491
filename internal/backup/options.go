package backup

import "github.com/shinji-kodama/compose-backup/internal/model"

// Default flag values.
const (
	DefaultComposeFile = "docker-compose.yml"
	DefaultOutDir      = "backups"
)

// Output names inside the output directory.
const (
	ComposeCopyName   = "docker-compose.yml"
	DockerDirArchive  = "docker-dir.tar.gz"
	DatabaseSubdir    = "db"
	VolumeSubdir      = "volumes"
	dumpFileExtension = ".sql"
)

// Options controls a single backup run.
type Options struct {
	// ComposeFile is the Compose file to back up.
	ComposeFile string

	// OutDir is the output root. It is created if missing.
	OutDir string

	// Services limits the run to these Compose services. Empty means all
	// MySQL-family services.
	Services []string

	// DockerDir is an optional host directory archived as docker-dir.tar.gz.
	DockerDir string

	// Layout decides whether dumps go to <out>/db (full) or <out> (flat).
	Layout model.Layout

	// ArchiveMounts enables volume and bind mount archiving.
	ArchiveMounts bool

	// CopyCompose copies the Compose file into the output root.
	CopyCompose bool
}

// FullOptions returns the options of a complete backup: dumps, mounts,
// compose copy and (when set) the docker directory.
func FullOptions(composeFile, outDir string) Options {
	return Options{
		ComposeFile:   composeFile,
		OutDir:        outDir,
		Layout:        model.LayoutFull,
		ArchiveMounts: true,
		CopyCompose:   true,
	}
}

// DatabasesOnlyOptions returns the options of a dump-only backup written
// flat into the output root.
func DatabasesOnlyOptions(composeFile, outDir string) Options {
	return Options{
		ComposeFile: composeFile,
		OutDir:      outDir,
		Layout:      model.LayoutFlat,
	}
}
