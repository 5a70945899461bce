package runtime

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ChildHostname is the fixed UTS hostname every container receives.
const ChildHostname = "iza-container"

// ChildEntryArg is the hidden argv[1] the launcher re-execs itself with to
// reach RunChildEntry — never typed by a user, matching the teacher's
// "internal command, should not be directly invoked" nsinit init command.
const ChildEntryArg = "__child_entry"

// Environment variable names the parent sets for the re-exec'd child.
const (
	envRootSymlink = "IZA_ROOT_SYMLINK"
)

// RunChildEntry is the code path executed inside the new namespaces, as the
// initial process of the new PID namespace. It is invoked from cmd/iza's
// hidden entry point, never called directly by ContainerLauncher in the
// parent process. On any failure in steps 1-4 it logs and returns a
// non-zero status instead of panicking, so the parent observes an ordinary
// child exit rather than a crash.
func RunChildEntry(command []string) int {
	if err := unix.Sethostname([]byte(ChildHostname)); err != nil {
		log.WithError(err).Error("set hostname failed")
		return 1
	}

	root, err := locateContainerRoot()
	if err != nil {
		log.WithError(err).Error("locate container root failed")
		return 1
	}

	if err := unix.Chroot(root); err != nil {
		log.WithError(err).WithField("root", root).Error("chroot failed")
		return 1
	}
	if err := unix.Chdir("/"); err != nil {
		log.WithError(err).Error("chdir to new root failed")
		return 1
	}

	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		log.WithError(err).Warn("mount /proc failed, continuing")
	}
	if err := unix.Mount("tmpfs", "/tmp", "tmpfs", 0, ""); err != nil {
		log.WithError(err).Warn("mount /tmp failed, continuing")
	}

	if len(command) == 0 {
		command = []string{"/bin/bash"}
	}
	path, err := resolveExecPath(command[0])
	if err != nil {
		log.WithError(err).WithField("command", command[0]).Error("resolve command path failed")
		return 1
	}

	if err := unix.Exec(path, command, os.Environ()); err != nil {
		log.WithError(err).WithField("command", command).Error("exec failed")
		return 1
	}
	panic("unreachable: exec replaced this process image")
}

// locateContainerRoot reads the well-known symlink (the link's own path is
// passed via environment by the parent) the launcher installed before spawning,
// so the child can find its ContainerRoot without any other IPC.
func locateContainerRoot() (string, error) {
	link := os.Getenv(envRootSymlink)
	if link == "" {
		return "", errors.New("missing " + envRootSymlink + " in child environment")
	}
	target, err := os.Readlink(link)
	if err != nil {
		return "", errors.Wrapf(err, "read container root symlink %s", link)
	}
	return target, nil
}

// resolveExecPath leaves absolute paths untouched; anything else is
// rejected, since the child's PATH inside a freshly chrooted, possibly
// minimal root cannot be trusted the way the host's can.
func resolveExecPath(cmd string) (string, error) {
	if len(cmd) > 0 && cmd[0] == '/' {
		return cmd, nil
	}
	return "", errors.Errorf("command %q must be an absolute path inside the container", cmd)
}
