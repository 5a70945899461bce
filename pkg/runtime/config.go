// Package runtime implements the container lifecycle orchestrator
// (ContainerLauncher) and the code path executed inside the freshly
// namespaced child (ChildEntry).
package runtime

import (
	"github.com/c2h5oh/datasize"

	"github.com/Priya00300/iza-container/pkg/image"
	"github.com/Priya00300/iza-container/pkg/units"
)

// ResourceLimits is the optional memory and CPU cap pair, plus the pids
// ceiling applied whenever a cgroup is set up (see SetPids in pkg/cgroupv2).
type ResourceLimits struct {
	Memory  *datasize.ByteSize
	CPU     *units.CPULimit
	PidsMax int64
	HasPids bool
}

// HasMemory reports whether a memory cap was requested.
func (r ResourceLimits) HasMemory() bool { return r.Memory != nil }

// HasCPU reports whether a CPU cap was requested.
func (r ResourceLimits) HasCPU() bool { return r.CPU != nil }

// Any reports whether any limit (memory, CPU, or an explicit pids ceiling)
// was requested — the signal the launcher uses to decide whether a
// CgroupV2 is set up at all.
func (r ResourceLimits) Any() bool {
	return r.HasMemory() || r.HasCPU() || r.HasPids
}

// Config is the fully-parsed result of the CLI front end for a run
// invocation, threaded from flag parsing straight into Launcher.Launch.
type Config struct {
	// Image is nil in legacy mode (no image named on the command line).
	Image   *image.Ref
	Command []string
	Limits  ResourceLimits
}
