// Package legacyroot synthesizes a minimal root filesystem from the host's
// own binaries, for development use when no image has been pulled. It is a
// backward-compatibility facility, not a replacement for ImageStore/LayeredFS.
package legacyroot

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Path is the fixed host path the legacy root is synthesized at. A var, not
// a const, so tests can point it at a scratch directory.
var Path = "/tmp/iza-rootfs"

// directories is the standard skeleton created under the synthesized root.
var directories = []string{
	"bin", "usr/bin", "etc", "proc", "tmp", "dev",
	"lib", "lib64", "lib/x86_64-linux-gnu", "usr/lib", "usr/lib/x86_64-linux-gnu",
}

// Binaries is the configurable allow-list of host executables copied into
// the synthesized root, each followed by its shared-library closure. Paths
// are absolute on the host and preserved at the same path under the root.
var Binaries = []string{
	"/bin/bash",
	"/bin/sh",
	"/bin/ls",
	"/bin/ps",
	"/bin/cat",
	"/bin/hostname",
	"/bin/rm",
	"/bin/sleep",
	"/usr/bin/whoami",
	"/usr/bin/yes",
	"/usr/bin/head",
	"/usr/bin/du",
	"/usr/bin/timeout",
}

// loaders are copied verbatim to both canonical locations regardless of
// whether any allow-listed binary actually resolves to one of them — a
// missing dynamic loader makes every copied binary unusable.
var loaders = []string{
	"/lib64/ld-linux-x86-64.so.2",
	"/lib/ld-linux.so.2",
}

// lddRunner abstracts invoking the host's loader-introspection tool, so
// tests can substitute a fake without a real binary's real dependencies.
var lddRunner = runLdd

// Build synthesizes the legacy root at Path: it removes any stale tree,
// recreates the skeleton, copies the allow-listed binaries and their shared
// library closures, copies the dynamic loader, and writes etc/hostname and
// etc/passwd. Individual binary copy failures are logged and skipped — a
// missing /usr/bin/whoami on a minimal host is not fatal to the rest.
func Build() (string, error) {
	if err := os.RemoveAll(Path); err != nil {
		return "", errors.Wrapf(err, "clear stale legacy root %s", Path)
	}
	if err := os.MkdirAll(Path, 0755); err != nil {
		return "", errors.Wrapf(err, "create legacy root %s", Path)
	}

	for _, d := range directories {
		if err := os.MkdirAll(filepath.Join(Path, d), 0755); err != nil {
			return "", errors.Wrapf(err, "create skeleton dir %s", d)
		}
	}

	for _, bin := range Binaries {
		if err := copyBinaryClosure(bin); err != nil {
			log.WithError(err).WithField("binary", bin).Debug("skipped legacy root binary")
		}
	}

	for _, loader := range loaders {
		dst := filepath.Join(Path, loader)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			continue
		}
		if err := copyFile(loader, dst); err != nil {
			log.WithError(err).WithField("loader", loader).Debug("dynamic loader not present on host")
		}
	}

	if err := os.WriteFile(filepath.Join(Path, "etc", "hostname"), []byte("iza-container\n"), 0644); err != nil {
		return "", errors.Wrap(err, "write etc/hostname")
	}
	if err := os.WriteFile(filepath.Join(Path, "etc", "passwd"), []byte("root:x:0:0:root:/root:/bin/bash\n"), 0644); err != nil {
		return "", errors.Wrap(err, "write etc/passwd")
	}

	return Path, nil
}

func copyBinaryClosure(src string) error {
	dst := filepath.Join(Path, src)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	for _, lib := range closureOf(src) {
		libDst := filepath.Join(Path, lib)
		if err := os.MkdirAll(filepath.Dir(libDst), 0755); err != nil {
			continue
		}
		if err := copyFile(lib, libDst); err != nil {
			log.WithError(err).WithField("library", lib).Debug("shared library copy failed")
		}
	}
	return nil
}

// closureOf returns the absolute paths of binary's dynamic-linker
// dependencies, discovered via lddRunner and parsed per the two line shapes
// the host loader emits: "name => path (0x...)" and "path (0x...)".
func closureOf(binary string) []string {
	out, err := lddRunner(binary)
	if err != nil {
		return nil
	}

	var libs []string
	for _, line := range strings.Split(out, "\n") {
		if path := parseLddLine(line); path != "" {
			libs = append(libs, path)
		}
	}
	return libs
}

func parseLddLine(line string) string {
	var candidate string
	if arrow := strings.Index(line, " => "); arrow >= 0 {
		rest := line[arrow+len(" => "):]
		if paren := strings.Index(rest, " (0x"); paren >= 0 {
			candidate = rest[:paren]
		}
	} else if paren := strings.Index(line, " (0x"); paren >= 0 && strings.Contains(line, "/") {
		candidate = line[:paren]
	}

	candidate = strings.TrimSpace(candidate)
	if strings.HasPrefix(candidate, "/") {
		return candidate
	}
	return ""
}

func runLdd(binary string) (string, error) {
	out, err := exec.Command("ldd", binary).CombinedOutput()
	return string(out), err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
