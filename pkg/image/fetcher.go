package image

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	archive "github.com/moby/go-archive"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Priya00300/iza-container/pkg/errs"
)

// UserAgent is sent on every image download so operators can recognize the
// runtime's traffic in their access logs.
const UserAgent = "iza-container/1"

// Manifest is the small JSON sidecar written next to a cached archive,
// recording enough provenance that a repeated pull can short-circuit the
// download. `images` does not read it.
type Manifest struct {
	URL        string    `json:"url"`
	FetchedAt  time.Time `json:"fetched_at"`
	SizeBytes  int64     `json:"size_bytes"`
	SHA256     string    `json:"sha256"`
}

// ErrUnsupportedImage is returned by Fetcher.Pull for a repository name
// absent from the known-images table.
var ErrUnsupportedImage = errors.New("unsupported image")

// Fetcher downloads an archive from a URL into the store's cache directory
// and extracts it into an image slot.
type Fetcher struct {
	Store       *Store
	Client      *http.Client
	KnownImages map[string]string
}

// NewFetcher builds a Fetcher with the default, known-image table and a
// plain http.Client with redirect-following left at its Go default.
func NewFetcher(store *Store) *Fetcher {
	return &Fetcher{
		Store:  store,
		Client: &http.Client{Timeout: 0},
		KnownImages: map[string]string{
			"alpine":   "https://dl-cdn.alpinelinux.org/alpine/v3.20/releases/x86_64/alpine-minirootfs-3.20.3-x86_64.tar.gz",
			"busybox":  "https://github.com/docker-library/busybox/raw/master/stable/musl/rootfs.tar.xz",
			"ubuntu":   "https://cloud-images.ubuntu.com/minimal/releases/noble/release/ubuntu-24.04-minimal-cloudimg-amd64-root.tar.xz",
			"debian":   "https://github.com/debuerreotype/docker-debian-artifacts/raw/dist-amd64/bookworm/rootfs.tar.xz",
		},
	}
}

// cachePath returns the path to ref's cached archive and its manifest
// sidecar.
func (f *Fetcher) cachePath(ref Ref) (archivePath, manifestPath string) {
	base := filepath.Join(f.Store.CacheDir, ref.dirName()+".tar.gz")
	return base, base + ".json"
}

// Pull fetches ref, extracting it into the store. If a cached archive with a
// matching manifest is already present it is re-extracted instead of
// re-downloaded. Extraction is staged into a sibling directory and
// committed atomically, so two concurrent pulls of the same ref each
// produce a complete, independently valid rootfs (see DESIGN.md's Open
// Question decision on concurrent pulls).
func (f *Fetcher) Pull(ref Ref) error {
	url, ok := f.KnownImages[ref.Name]
	if !ok {
		return errs.Wrapf(errs.UnsupportedImage, ErrUnsupportedImage, "no known archive URL for repository %q", ref.Name)
	}

	archivePath, manifestPath := f.cachePath(ref)

	if m, err := readManifest(manifestPath); err == nil && m.URL == url {
		log.WithField("image", ref.String()).Debug("cache hit, skipping download")
	} else {
		if err := f.download(url, archivePath); err != nil {
			return errs.Wrap(errs.DownloadFailed, err, "download image archive")
		}
	}

	staging := f.Store.StagingSlot(ref, os.Getpid())
	if err := os.RemoveAll(staging); err != nil {
		return errs.Wrapf(errs.ExtractFailed, err, "clear stale staging dir %s", staging)
	}
	rootfs := filepath.Join(staging, RootfsDir)
	if err := os.MkdirAll(rootfs, 0755); err != nil {
		os.RemoveAll(staging)
		return errs.Wrapf(errs.ExtractFailed, err, "create staging rootfs %s", rootfs)
	}

	if err := f.extract(archivePath, rootfs); err != nil {
		os.RemoveAll(staging)
		return errs.Wrap(errs.ExtractFailed, err, "extract image archive")
	}

	if err := f.Store.CommitSlot(ref, staging); err != nil {
		os.RemoveAll(staging)
		return errs.Wrap(errs.ExtractFailed, err, "commit extracted image")
	}

	manifest := Manifest{URL: url, FetchedAt: time.Now(), SizeBytes: dirSize(filepath.Join(f.Store.imageDir(ref), RootfsDir))}
	if sum, err := sha256File(archivePath); err == nil {
		manifest.SHA256 = sum
	}
	if err := writeManifest(manifestPath, manifest); err != nil {
		log.WithError(err).Warn("failed to write image manifest, continuing")
	}

	return nil
}

func (f *Fetcher) download(url, dest string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build download request")
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "create cache directory")
	}

	out, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return errors.Wrap(err, "create temp download file")
	}
	tmpName := out.Name()

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write downloaded archive %s", dest)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close downloaded archive")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "move downloaded archive into cache")
	}
	return nil
}

// extract unpacks the archive at archivePath into rootfs, preserving
// permissions, mtimes, and extended attributes. Any fatal error leaves the
// caller responsible for removing the partially-populated directory.
func (f *Fetcher) extract(archivePath, rootfs string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "open archive %s", archivePath)
	}
	defer file.Close()

	opts := &archive.TarOptions{
		NoLchown: true,
	}
	if err := archive.Untar(file, rootfs, opts); err != nil {
		return errors.Wrapf(err, "extract archive %s", archivePath)
	}
	return nil
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
