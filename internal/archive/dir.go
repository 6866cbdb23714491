package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ErrNotExist is returned by ArchiveDir when the source directory is absent.
var ErrNotExist = errors.New("source directory does not exist")

// ArchiveDir writes a .tar.gz of dir to dest and returns the archive size
// in bytes. Entries are stored under the directory's base name, like
// `tar -C <parent> -czf dest <base>`.
//
// Regular files, directories and symlinks are archived; sockets, devices
// and named pipes are skipped. When dest lies inside dir the archive does
// not include itself. On failure the partial archive is removed.
func ArchiveDir(dir, dest string) (int64, error) {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotExist
		}
		return 0, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	self, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return 0, fmt.Errorf("failed to stat %s: %w", dest, err)
	}

	if err := writeTarGz(f, dir, self); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return 0, fmt.Errorf("failed to close %s: %w", dest, err)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	return st.Size(), nil
}

// writeTarGz streams dir into w. skip is the archive being written, which
// is left out if the walk reaches it.
func writeTarGz(w io.Writer, dir string, skip fs.FileInfo) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	parent := filepath.Dir(dir)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return addEntry(tw, parent, path, d, skip)
	})
	if walkErr != nil {
		return fmt.Errorf("failed to archive %s: %w", dir, walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

func addEntry(tw *tar.Writer, parent, path string, d fs.DirEntry, skip fs.FileInfo) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	if skip != nil && os.SameFile(info, skip) {
		return nil
	}

	mode := info.Mode()
	if !mode.IsRegular() && !mode.IsDir() && mode&fs.ModeSymlink == 0 {
		return nil
	}

	link := ""
	if mode&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if mode.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !mode.IsRegular() {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}
