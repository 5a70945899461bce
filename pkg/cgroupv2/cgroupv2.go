// Package cgroupv2 manages one control group in the unified cgroup v2
// hierarchy: creation, controller enablement, memory/cpu/pids caps, process
// attachment, and teardown.
package cgroupv2

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/Priya00300/iza-container/pkg/errs"
	log "github.com/sirupsen/logrus"
)

// Root is the conventional mountpoint of the unified cgroup v2 hierarchy.
// It is a var, not a const, so tests can point it at a scratch directory
// without needing real cgroup privileges.
var Root = "/sys/fs/cgroup"

// DefaultPidsMax is the ceiling applied to the pids controller when the
// caller does not request a specific limit — a generous default that
// contains runaway fork bombs without constraining ordinary workloads.
const DefaultPidsMax = 4096

// state tracks the lifecycle Empty -> Created -> Configured -> Populated ->
// Released, with Released reachable from any non-terminal state.
type state int

const (
	stateEmpty state = iota
	stateCreated
	stateConfigured
	statePopulated
	stateReleased
)

// Handle is one cgroup v2 directory. The zero value is not usable; build
// one with New.
type Handle struct {
	id      string
	path    string
	created bool
	st      state
}

// Available reports whether the unified hierarchy's controller inventory
// file exists at the conventional path.
func Available() bool {
	return AvailableAt(Root)
}

// AvailableAt is Available against an arbitrary root, used by tests.
func AvailableAt(root string) bool {
	_, err := os.Stat(filepath.Join(root, "cgroup.controllers"))
	return err == nil
}

// New returns a Handle for the cgroup named id under Root. It does not
// touch the filesystem; call Create to do that.
func New(id string) *Handle {
	return NewAt(Root, id)
}

// NewAt is New against an arbitrary root, used by tests.
func NewAt(root, id string) *Handle {
	return &Handle{id: id, path: filepath.Join(root, id), st: stateEmpty}
}

// Path returns the cgroup's directory path.
func (h *Handle) Path() string {
	return h.path
}

// Create checks availability and makes the cgroup directory, marking the
// handle as owing a Release. It then best-effort enables the memory, cpu,
// and pids controllers in the subtree-control file — some kernels reject
// this write in a leaf cgroup; a failure is logged as a warning and does
// not fail Create.
func (h *Handle) Create() error {
	if !Available() {
		return errs.New(errs.CgroupsUnavailable, "unified cgroup hierarchy not mounted at "+Root)
	}

	if err := os.Mkdir(h.path, 0755); err != nil && !os.IsExist(err) {
		return errs.Wrapf(errs.CgroupsUnavailable, err, "create cgroup directory %s", h.path)
	}
	h.created = true
	h.st = stateCreated

	subtree := filepath.Join(h.path, "cgroup.subtree_control")
	if err := os.WriteFile(subtree, []byte("+memory +cpu +pids"), 0644); err != nil {
		log.WithError(err).WithField("cgroup", h.id).Warn("could not enable subtree controllers, continuing")
	}

	return nil
}

// SetMemory writes bytes as an ASCII decimal into memory.max.
func (h *Handle) SetMemory(bytes uint64) error {
	if err := h.writeFile("memory.max", strconv.FormatUint(bytes, 10)); err != nil {
		return errs.Wrapf(errs.LimitRejected, err, "set memory.max on %s", h.path)
	}
	h.st = stateConfigured
	return nil
}

// SetCPU writes "<quota> <period>" into cpu.max.
func (h *Handle) SetCPU(quota, period int64) error {
	val := strconv.FormatInt(quota, 10) + " " + strconv.FormatInt(period, 10)
	if err := h.writeFile("cpu.max", val); err != nil {
		return errs.Wrapf(errs.LimitRejected, err, "set cpu.max on %s", h.path)
	}
	h.st = stateConfigured
	return nil
}

// SetPids writes max into pids.max. Failure is reported the same way as
// memory/cpu cap failures, as LimitRejected.
func (h *Handle) SetPids(max int64) error {
	if err := h.writeFile("pids.max", strconv.FormatInt(max, 10)); err != nil {
		return errs.Wrapf(errs.LimitRejected, err, "set pids.max on %s", h.path)
	}
	h.st = stateConfigured
	return nil
}

// Attach writes pid into cgroup.procs, placing that process (and, by
// inheritance, its children) under this cgroup's limits.
func (h *Handle) Attach(pid int) error {
	if err := h.writeFile("cgroup.procs", strconv.Itoa(pid)); err != nil {
		return errs.Wrapf(errs.AttachFailed, err, "attach pid %d to %s", pid, h.path)
	}
	h.st = statePopulated
	return nil
}

func (h *Handle) writeFile(name, value string) error {
	return os.WriteFile(filepath.Join(h.path, name), []byte(value), 0644)
}

// Release removes the cgroup directory. Failure is non-fatal — the kernel
// reaps empty cgroups asynchronously — and Release is idempotent.
func (h *Handle) Release() error {
	if h == nil || !h.created || h.st == stateReleased {
		return nil
	}
	if err := os.RemoveAll(h.path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("cgroup", h.id).Warn("cgroup removal failed, kernel will reap it")
	}
	h.st = stateReleased
	return nil
}
