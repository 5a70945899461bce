package errs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapReturnsNilForNilCause(t *testing.T) {
	require.NoError(t, Wrap(SpawnFailed, nil, "x"))
	require.NoError(t, Wrapf(SpawnFailed, nil, "x %d", 1))
}

func TestKindOfExtractsWrappedKind(t *testing.T) {
	err := Wrap(CgroupsUnavailable, io.EOF, "create cgroup")
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, CgroupsUnavailable, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(io.EOF)
	require.False(t, ok)
}

func TestErrorMessageIncludesKindAndCause(t *testing.T) {
	err := New(ImageNotFound, "alpine:latest missing")
	require.Equal(t, "ImageNotFound: alpine:latest missing", err.Error())
}

func TestKindStringCoversAllValues(t *testing.T) {
	kinds := []Kind{
		InvalidArgs, InvalidLimit, UnsupportedImage, DownloadFailed,
		ExtractFailed, ImageNotFound, FsSetupFailed, CgroupsUnavailable,
		LimitRejected, AttachFailed, SpawnFailed,
	}
	for _, k := range kinds {
		require.NotEqual(t, "Unknown", k.String())
	}
}
