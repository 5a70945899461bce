package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Priya00300/iza-container/pkg/cgroupv2"
	"github.com/Priya00300/iza-container/pkg/errs"
	"github.com/Priya00300/iza-container/pkg/image"
	"github.com/Priya00300/iza-container/pkg/layeredfs"
	"github.com/Priya00300/iza-container/pkg/legacyroot"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// WorkRoot is the host directory per-container working directories are
// created under.
var WorkRoot = "/var/lib/iza/overlay"

// childNamespaces is the set of namespaces the kernel places the spawned
// process into simultaneously, per the orchestrator's child stage.
const childNamespaces = unix.CLONE_NEWPID |
	unix.CLONE_NEWNS |
	unix.CLONE_NEWUTS |
	unix.CLONE_NEWIPC |
	unix.CLONE_NEWNET

// Launcher orchestrates one run invocation: it assembles the filesystem,
// the cgroup, spawns the isolated process, waits on it, and guarantees
// teardown of every acquired resource on every exit path.
type Launcher struct {
	Store *image.Store
	// SelfExe is the path to this executable, re-exec'd for the child
	// entry. Defaults to os.Executable() via NewLauncher.
	SelfExe string
}

// NewLauncher builds a Launcher backed by store, resolving the current
// executable's path once up front for the re-exec the child stage performs.
func NewLauncher(store *image.Store) (*Launcher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errs.Wrap(errs.SpawnFailed, err, "resolve own executable path")
	}
	return &Launcher{Store: store, SelfExe: self}, nil
}

// Launch runs cfg to completion: filesystem stage, cgroup stage, child
// stage, attach stage, wait stage, and teardown (always, regardless of
// which stage failed). It returns the process exit code the caller (cmd/iza)
// should pass to os.Exit.
func (l *Launcher) Launch(cfg Config) (int, error) {
	containerID := fmt.Sprintf("iza-%d-%d", os.Getpid(), time.Now().Unix())
	logEntry := log.WithField("container", containerID)

	root, teardownFS, err := l.prepareFilesystem(cfg, containerID)
	if err != nil {
		return 1, err
	}
	defer teardownFS()

	linkPath := childSymlinkPath(os.Getpid())
	if err := os.Symlink(root, linkPath); err != nil {
		return 1, errs.Wrapf(errs.FsSetupFailed, err, "install root symlink %s", linkPath)
	}
	defer os.Remove(linkPath)

	var cgroup *cgroupv2.Handle
	if cfg.Limits.Any() {
		cgroup, err = l.prepareCgroup(containerID, cfg.Limits)
		if err != nil {
			return 1, err
		}
	}
	defer func() {
		if cgroup != nil {
			if err := cgroup.Release(); err != nil {
				logEntry.WithError(err).Warn("cgroup release failed")
			}
		}
	}()

	cmd := exec.Command(l.SelfExe, ChildEntryArg)
	cmd.Args = append(cmd.Args, cfg.Command...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), envRootSymlink+"="+linkPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: childNamespaces}

	if err := cmd.Start(); err != nil {
		return 1, errs.Wrapf(errs.SpawnFailed, err, "spawn container process")
	}

	// The child is attached only after it has started: nothing holds it
	// back until this write lands, so it can begin running the user
	// command briefly before the cgroup's limits apply to it.
	if cgroup != nil {
		if err := cgroup.Attach(cmd.Process.Pid); err != nil {
			logEntry.WithError(err).Warn("attach to cgroup failed, continuing best-effort")
		}
	}

	waitErr := cmd.Wait()
	disposition := dispositionFromWait(waitErr)

	return disposition.ProcessExitCode(), nil
}

// prepareFilesystem implements the filesystem stage: resolve an image
// through ImageStore + LayeredFS, or synthesize the legacy minimal root
// when none was named. It returns the ContainerRoot and a teardown func
// that is always safe to call, even after a partial failure.
func (l *Launcher) prepareFilesystem(cfg Config, containerID string) (string, func(), error) {
	if cfg.Image == nil {
		root, err := legacyroot.Build()
		if err != nil {
			return "", func() {}, errs.Wrap(errs.FsSetupFailed, err, "build legacy minimal root")
		}
		return root, func() {}, nil
	}

	imageRootfs, ok := l.Store.Resolve(*cfg.Image)
	if !ok {
		return "", func() {}, errs.New(errs.ImageNotFound, "image not found: "+cfg.Image.String()+" (try pull)")
	}

	workDir := filepath.Join(WorkRoot, containerID)
	fs, err := layeredfs.Prepare(imageRootfs, workDir)
	if err != nil {
		return "", func() {}, errs.Wrap(errs.FsSetupFailed, err, "prepare layered filesystem")
	}

	teardown := func() {
		if err := fs.Release(); err != nil {
			log.WithField("container", containerID).WithError(err).Warn("layered filesystem release failed")
		}
	}
	return fs.ContainerRoot, teardown, nil
}

// prepareCgroup implements the cgroup stage: create the group and apply
// every requested cap, including the pids ceiling which defaults to
// cgroupv2.DefaultPidsMax when the caller did not set one explicitly. A
// failure to write that default ceiling is logged and skipped; a failure
// to write an explicitly requested one is returned.
func (l *Launcher) prepareCgroup(containerID string, limits ResourceLimits) (*cgroupv2.Handle, error) {
	h := cgroupv2.New(containerID)
	if err := h.Create(); err != nil {
		return nil, err
	}

	if limits.HasMemory() {
		if err := h.SetMemory(uint64(*limits.Memory)); err != nil {
			h.Release()
			return nil, err
		}
	}
	if limits.HasCPU() {
		if err := h.SetCPU(limits.CPU.Quota, limits.CPU.Period); err != nil {
			h.Release()
			return nil, err
		}
	}
	pidsMax := cgroupv2.DefaultPidsMax
	if limits.HasPids {
		pidsMax = int(limits.PidsMax)
	}
	if err := h.SetPids(int64(pidsMax)); err != nil {
		if limits.HasPids {
			h.Release()
			return nil, err
		}
		log.WithField("container", containerID).WithError(err).Warn("default pids ceiling not applied, continuing")
	}

	return h, nil
}

// childSymlinkPath is the well-known path the child reads to find its
// ContainerRoot, derived from the launcher's own process id.
func childSymlinkPath(launcherPID int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("iza-container-%d", launcherPID))
}
