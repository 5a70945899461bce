package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "images"), filepath.Join(dir, "cache"))
	require.NoError(t, err)
	return store
}

func writeFakeImage(t *testing.T, store *Store, ref Ref, files map[string]string) {
	t.Helper()
	rootfs := filepath.Join(store.ImagesDir, ref.dirName(), RootfsDir)
	require.NoError(t, os.MkdirAll(rootfs, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(rootfs, name), []byte(content), 0644))
	}
}

func TestParseRefDefaultsTag(t *testing.T) {
	r := ParseRef("alpine")
	require.Equal(t, "alpine", r.Name)
	require.Equal(t, DefaultTag, r.Tag)
	require.Equal(t, "alpine:latest", r.String())

	r2 := ParseRef("alpine:3.20")
	require.Equal(t, "alpine", r2.Name)
	require.Equal(t, "3.20", r2.Tag)
}

func TestResolveFindsCompleteImage(t *testing.T) {
	store := newTestStore(t)
	ref := ParseRef("a:latest")
	writeFakeImage(t, store, ref, map[string]string{"hello": "world"})

	path, ok := store.Resolve(ref)
	require.True(t, ok)
	require.Equal(t, filepath.Join(store.ImagesDir, "a:latest", RootfsDir), path)

	_, ok = store.Resolve(ParseRef("missing:latest"))
	require.False(t, ok)
}

func TestResolveRejectsEmptyRootfs(t *testing.T) {
	store := newTestStore(t)
	ref := ParseRef("empty:latest")
	require.NoError(t, os.MkdirAll(filepath.Join(store.ImagesDir, ref.dirName(), RootfsDir), 0755))

	_, ok := store.Resolve(ref)
	require.False(t, ok)
}

func TestEnumerateListsAllImages(t *testing.T) {
	store := newTestStore(t)
	writeFakeImage(t, store, ParseRef("a:latest"), map[string]string{"f": "x"})
	writeFakeImage(t, store, ParseRef("b:latest"), map[string]string{"f": "xy"})

	infos, err := store.Enumerate()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	repos := map[string]string{}
	for _, info := range infos {
		repos[info.Repo] = info.Tag
	}
	require.Equal(t, map[string]string{"a": "latest", "b": "latest"}, repos)
}

func TestPrepareSlotRemovesStaleDirectory(t *testing.T) {
	store := newTestStore(t)
	ref := ParseRef("a:latest")
	writeFakeImage(t, store, ref, map[string]string{"stale": "data"})

	slot, err := store.PrepareSlot(ref)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(slot, RootfsDir))
	require.True(t, os.IsNotExist(err))
}

func TestCommitSlotIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ref := ParseRef("a:latest")

	staging := store.StagingSlot(ref, 1234)
	require.NoError(t, os.MkdirAll(filepath.Join(staging, RootfsDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, RootfsDir, "f"), []byte("x"), 0644))

	require.NoError(t, store.CommitSlot(ref, staging))

	path, ok := store.Resolve(ref)
	require.True(t, ok)
	data, err := os.ReadFile(filepath.Join(path, "f"))
	require.NoError(t, err)
	require.Equal(t, "x", string(data))

	_, err = os.Stat(staging)
	require.True(t, os.IsNotExist(err))
}
