package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/Priya00300/iza-container/pkg/cgroupv2"
	"github.com/Priya00300/iza-container/pkg/image"
	"github.com/Priya00300/iza-container/pkg/legacyroot"
	"github.com/Priya00300/iza-container/pkg/units"
)

func TestChildSymlinkPathIsStablePerPID(t *testing.T) {
	require.Equal(t, childSymlinkPath(123), childSymlinkPath(123))
	require.NotEqual(t, childSymlinkPath(123), childSymlinkPath(456))
}

func TestPrepareFilesystemLegacyModeWhenNoImageNamed(t *testing.T) {
	root := t.TempDir()
	oldPath, oldBinaries := legacyroot.Path, legacyroot.Binaries
	defer func() { legacyroot.Path, legacyroot.Binaries = oldPath, oldBinaries }()
	legacyroot.Path = filepath.Join(root, "rootfs")
	legacyroot.Binaries = nil

	l := &Launcher{}
	path, teardown, err := l.prepareFilesystem(Config{}, "iza-test")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "rootfs"), path)
	teardown() // legacy mode teardown is a no-op; must not panic or remove the root
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestPrepareFilesystemImageModeFailsWhenImageMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := image.NewStore(filepath.Join(dir, "images"), filepath.Join(dir, "cache"))
	require.NoError(t, err)

	l := &Launcher{Store: store}
	ref := image.ParseRef("missing:latest")
	_, _, err = l.prepareFilesystem(Config{Image: &ref}, "iza-test")
	require.Error(t, err)
}

// TestLaunchTearsDownOnSpawnFailure covers testable property 9: if the
// clone-with-namespaces call never happens because cmd.Start fails
// (SpawnFailed), neither the per-container working directory nor the
// cgroup directory survives the call.
func TestLaunchTearsDownOnSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := image.NewStore(filepath.Join(dir, "images"), filepath.Join(dir, "cache"))
	require.NoError(t, err)
	ref := image.ParseRef("a:latest")
	rootfs := filepath.Join(store.ImagesDir, ref.String(), "rootfs")
	require.NoError(t, os.MkdirAll(rootfs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(rootfs, "marker"), []byte("x"), 0644))

	oldWorkRoot := WorkRoot
	WorkRoot = filepath.Join(dir, "overlay")
	defer func() { WorkRoot = oldWorkRoot }()

	cgroupRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cgroupRoot, "cgroup.controllers"), []byte("cpu memory pids\n"), 0644))
	oldCgroupRoot := cgroupv2.Root
	cgroupv2.Root = cgroupRoot
	defer func() { cgroupv2.Root = oldCgroupRoot }()

	l := &Launcher{Store: store, SelfExe: filepath.Join(dir, "no-such-iza-binary")}
	memBytes := datasize.ByteSize(1024)
	cfg := Config{Image: &ref, Limits: ResourceLimits{Memory: &memBytes}}

	code, err := l.Launch(cfg)
	require.Error(t, err)
	require.Equal(t, 1, code)

	workEntries, _ := os.ReadDir(WorkRoot)
	require.Empty(t, workEntries, "per-container working directory must not survive a spawn failure")

	cgroupEntries, err := os.ReadDir(cgroupRoot)
	require.NoError(t, err)
	for _, e := range cgroupEntries {
		require.Equal(t, "cgroup.controllers", e.Name(), "cgroup directory must not survive a spawn failure")
	}
}

func TestPrepareCgroupAppliesDefaultPidsMaxWhenUnset(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cgroup.controllers"), []byte("cpu memory pids\n"), 0644))

	oldRoot := cgroupv2.Root
	cgroupv2.Root = root
	defer func() { cgroupv2.Root = oldRoot }()

	l := &Launcher{}
	memBytes := datasize.ByteSize(1024)
	h, err := l.prepareCgroup("iza-test", ResourceLimits{Memory: &memBytes, CPU: &units.CPULimit{Quota: 50000, Period: 100000}})
	require.NoError(t, err)
	defer h.Release()

	data, err := os.ReadFile(filepath.Join(h.Path(), "pids.max"))
	require.NoError(t, err)
	require.Equal(t, "4096", string(data))
}
