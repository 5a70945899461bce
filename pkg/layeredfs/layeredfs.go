// Package layeredfs prepares a per-container mutable root filesystem on top
// of an immutable image rootfs, preferring an overlay union mount and
// falling back to a recursive copy when overlay is unavailable.
package layeredfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	upperDir  = "upper"
	workDir   = "work"
	mergedDir = "merged"
	copyDir   = "rootfs"

	procFilesystems = "/proc/filesystems"
)

// FS is a prepared per-container root. ContainerRoot is what the caller
// chroots the child into; Release must be called when the container is
// done, and is safe to call even if Prepare failed partway.
type FS struct {
	// WorkDir is the per-container scratch directory everything here lives
	// under (named by ContainerId by the caller).
	WorkDir string
	// ContainerRoot is the path the caller passes to the child as its new
	// root.
	ContainerRoot string
	// overlay is true if ContainerRoot is a live overlay mountpoint that
	// Release must unmount before removing WorkDir.
	overlay bool
}

// Prepare materializes a writable root derived from imageRootfs inside
// workDir (which must not yet exist). It tries overlay first; overlay
// mount failure, or the kernel not advertising overlay support at all, is
// not an error — Prepare silently downgrades to a recursive copy.
func Prepare(imageRootfs, workDir string) (*FS, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create container work dir %s", workDir)
	}

	if overlaySupported() {
		fs, err := prepareOverlay(imageRootfs, workDir)
		if err == nil {
			return fs, nil
		}
		log.WithError(err).Warn("overlay mount failed, falling back to copy")
	}

	return prepareCopy(imageRootfs, workDir)
}

// overlaySupported scans /proc/filesystems for the string "overlay".
func overlaySupported() bool {
	data, err := os.ReadFile(procFilesystems)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "overlay")
}

func prepareOverlay(imageRootfs, base string) (*FS, error) {
	upper := filepath.Join(base, upperDir)
	work := filepath.Join(base, workDir)
	merged := filepath.Join(base, mergedDir)

	for _, d := range []string{upper, work, merged} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, errors.Wrapf(err, "create overlay dir %s", d)
		}
	}

	opts := "lowerdir=" + imageRootfs + ",upperdir=" + upper + ",workdir=" + work
	if err := unix.Mount("overlay", merged, "overlay", 0, opts); err != nil {
		return nil, errors.Wrap(err, "mount overlay")
	}

	return &FS{WorkDir: base, ContainerRoot: merged, overlay: true}, nil
}

func prepareCopy(imageRootfs, base string) (*FS, error) {
	dest := filepath.Join(base, copyDir)
	if err := copyTree(imageRootfs, dest); err != nil {
		os.RemoveAll(base)
		return nil, errors.Wrap(err, "copy image rootfs")
	}
	return &FS{WorkDir: base, ContainerRoot: dest, overlay: false}, nil
}

// copyTree recursively copies src into dst, preserving symlinks (never
// dereferencing them) and regular file permissions.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return errors.Wrapf(err, "readlink %s", path)
			}
			return os.Symlink(link, target)
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copy %s -> %s", src, dst)
	}
	return nil
}

// Release unmounts the overlay (ignoring "not mounted" outcomes) if one was
// set up, then recursively removes WorkDir. It is safe to call on a FS
// whose Prepare failed partway, and safe to call more than once.
func (f *FS) Release() error {
	if f == nil {
		return nil
	}
	if f.overlay {
		merged := filepath.Join(f.WorkDir, mergedDir)
		if err := unix.Unmount(merged, 0); err != nil && err != unix.EINVAL && err != unix.ENOENT {
			log.WithError(err).Warn("unmount of container overlay failed, removing anyway")
		}
	}
	if f.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(f.WorkDir); err != nil {
		return errors.Wrapf(err, "remove container work dir %s", f.WorkDir)
	}
	return nil
}
