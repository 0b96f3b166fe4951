package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagen/torrentd/internal/metainfo"
)

func TestSingleFileReadWriteRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Allocate(&metainfo.Info{Name: "movie.mp4", Length: 16}))

	_, err = s.WriteAt([]byte("hello, torrentd!"), 0)
	require.NoError(t, err)

	buf := make([]byte, 16)
	_, err = s.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello, torrentd!", string(buf))
}

func TestMultiFileWriteSpansFileBoundary(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	info := &metainfo.Info{
		Name: "bundle",
		Files: []metainfo.File{
			{Path: []string{"a.bin"}, Length: 4},
			{Path: []string{"b.bin"}, Length: 4},
		},
	}
	require.NoError(t, s.Allocate(info))

	_, err = s.WriteAt([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	require.NoError(t, err)

	buf := make([]byte, 8)
	_, err = s.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf)
}

func TestReadAtPastEndOfSpansErrors(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Allocate(&metainfo.Info{Name: "f", Length: 4}))

	buf := make([]byte, 4)
	_, err = s.ReadAt(buf, 100)
	require.Error(t, err)
}
