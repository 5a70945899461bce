package cgroupv2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeHierarchy(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cgroup.controllers"), []byte("cpuset cpu io memory pids\n"), 0644))
	return root
}

func TestAvailableRequiresControllersFile(t *testing.T) {
	require.False(t, AvailableAt(t.TempDir()))
	require.True(t, AvailableAt(fakeHierarchy(t)))
}

func TestLifecycleCreateConfigureAttachRelease(t *testing.T) {
	root := fakeHierarchy(t)
	h := NewAt(root, "iza-test")

	oldRoot := Root
	Root = root
	defer func() { Root = oldRoot }()

	require.NoError(t, h.Create())
	_, err := os.Stat(h.Path())
	require.NoError(t, err)

	require.NoError(t, h.SetMemory(52428800))
	data, err := os.ReadFile(filepath.Join(h.Path(), "memory.max"))
	require.NoError(t, err)
	require.Equal(t, "52428800", string(data))

	require.NoError(t, h.SetCPU(50000, 100000))
	data, err = os.ReadFile(filepath.Join(h.Path(), "cpu.max"))
	require.NoError(t, err)
	require.Equal(t, "50000 100000", string(data))

	require.NoError(t, h.Attach(os.Getpid()))

	require.NoError(t, h.Release())
	_, err = os.Stat(h.Path())
	require.True(t, os.IsNotExist(err))

	// idempotent
	require.NoError(t, h.Release())
}

func TestCreateFailsWhenHierarchyUnavailable(t *testing.T) {
	root := t.TempDir() // no cgroup.controllers
	h := NewAt(root, "iza-test")

	oldRoot := Root
	Root = root
	defer func() { Root = oldRoot }()

	err := h.Create()
	require.Error(t, err)
}
