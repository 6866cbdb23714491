package archive

import (
	"context"
	"fmt"

	"github.com/shinji-kodama/compose-backup/internal/logging"
	"github.com/shinji-kodama/compose-backup/internal/model"
	"github.com/shinji-kodama/compose-backup/internal/runner"
)

// MountPoint is where the helper container sees the archived source.
const MountPoint = "/_backup_src"

// DefaultHelperImages are tried in order until one produces an archive.
var DefaultHelperImages = []string{"busybox", "alpine"}

// tarScript writes the archive to stdout. The explicit exit keeps a tar
// failure from being masked by a zero exit of the shell.
const tarScript = "tar -C " + MountPoint + " -czf - . || (echo 'tar failed' >&2; exit 1)"

// Target describes how a single mount is archived.
type Target struct {
	// Key identifies the mount across containers ("volume::<name>" or
	// "bind::<source>").
	Key string

	// Filename is the archive file name, without directory.
	Filename string

	// SourceSpec is the `docker run -v` argument exposing the mount.
	SourceSpec string
}

// TargetFor describes how m is archived. The boolean is false for mounts
// that are not archived: tmpfs, npipe, and volumes or binds without a name
// or source.
func TargetFor(m model.Mount) (Target, bool) {
	key := m.Key()
	if key == "" {
		return Target{}, false
	}
	if m.Type == model.MountVolume {
		return Target{
			Key:        key,
			Filename:   fmt.Sprintf("volume__%s.tar.gz", m.Name),
			SourceSpec: m.Name + ":" + MountPoint,
		}, true
	}
	return Target{
		Key:        key,
		Filename:   fmt.Sprintf("bind__%s.tar.gz", SanitizeBindPath(m.Source)),
		SourceSpec: m.Source + ":" + MountPoint,
	}, true
}

// Archiver tars mount sources through helper containers.
type Archiver struct {
	run    runner.Runner
	images []string
	log    *logging.Logger
}

// NewArchiver creates an Archiver using DefaultHelperImages.
func NewArchiver(run runner.Runner, log *logging.Logger) *Archiver {
	if log == nil {
		log = logging.NewNop()
	}
	return &Archiver{run: run, images: DefaultHelperImages, log: log}
}

// Archive returns a .tar.gz of the source exposed by sourceSpec, or nil if
// every helper image failed.
//
// A missing docker executable aborts immediately since no other image can
// succeed either.
func (a *Archiver) Archive(ctx context.Context, sourceSpec string) []byte {
	for _, image := range a.images {
		res := a.run.Run(ctx, "docker", "run", "--rm", "-v", sourceSpec, image, "sh", "-c", tarScript)
		if res.OK() {
			if res.Stdout == nil {
				return []byte{}
			}
			return res.Stdout
		}
		if res.Code == runner.ExitNotFound {
			return nil
		}
		a.log.Debug("helper image %s could not archive %s (exit %d)", image, sourceSpec, res.Code)
	}
	return nil
}
