package image

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Priya00300/iza-container/pkg/errs"
)

func TestPullRejectsUnknownRepository(t *testing.T) {
	store := newTestStore(t)
	fetcher := NewFetcher(store)
	fetcher.KnownImages = map[string]string{}

	err := fetcher.Pull(ParseRef("nope:latest"))
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.UnsupportedImage, kind)
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	want := Manifest{URL: "https://example.invalid/x.tar.gz", FetchedAt: time.Unix(1700000000, 0).UTC(), SizeBytes: 42, SHA256: "abc"}

	require.NoError(t, writeManifest(path, want))
	got, err := readManifest(path)
	require.NoError(t, err)
	require.Equal(t, want.URL, got.URL)
	require.Equal(t, want.SizeBytes, got.SizeBytes)
	require.Equal(t, want.SHA256, got.SHA256)
}

func TestCachePathNamesSiblingManifest(t *testing.T) {
	store := newTestStore(t)
	fetcher := NewFetcher(store)
	archivePath, manifestPath := fetcher.cachePath(ParseRef("alpine:latest"))
	require.Equal(t, archivePath+".json", manifestPath)
}
