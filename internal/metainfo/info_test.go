package metainfo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func encodeInfoDict(t *testing.T, d infoDict) []byte {
	t.Helper()
	b, err := bencode.EncodeBytes(&d)
	require.NoError(t, err)
	return b
}

func TestNewInfoSingleFile(t *testing.T) {
	raw := encodeInfoDict(t, infoDict{
		Name:        "file.iso",
		PieceLength: 1 << 18,
		Pieces:      string(make([]byte, 40)), // two pieces
		Length:      (1 << 18) + 100,
	})
	info, err := NewInfo(raw)
	require.NoError(t, err)
	require.Equal(t, "file.iso", info.Name)
	require.Equal(t, 2, info.NumPieces())
	require.EqualValues(t, (1<<18)+100, info.TotalLength())
	require.EqualValues(t, 100, info.PieceLengthAt(1))
	require.EqualValues(t, 1<<18, info.PieceLengthAt(0))
}

func TestNewInfoMultiFile(t *testing.T) {
	raw := encodeInfoDict(t, infoDict{
		Name:        "bundle",
		PieceLength: 1024,
		Pieces:      string(make([]byte, 20)),
		Files: []fileDict{
			{Length: 500, Path: []string{"a.txt"}},
			{Length: 524, Path: []string{"sub", "b.txt"}},
		},
	})
	info, err := NewInfo(raw)
	require.NoError(t, err)
	require.Len(t, info.Files, 2)
	require.EqualValues(t, 1024, info.TotalLength())
}

func TestNewInfoRejectsBadPieceLength(t *testing.T) {
	raw := encodeInfoDict(t, infoDict{Name: "x", PieceLength: 0, Pieces: string(make([]byte, 20)), Length: 1})
	_, err := NewInfo(raw)
	require.Error(t, err)
}

func TestNewInfoRejectsMisalignedPieces(t *testing.T) {
	raw := encodeInfoDict(t, infoDict{Name: "x", PieceLength: 1024, Pieces: "short", Length: 1})
	_, err := NewInfo(raw)
	require.Error(t, err)
}

func TestNewInfoRejectsEmptyFileSet(t *testing.T) {
	raw := encodeInfoDict(t, infoDict{Name: "x", PieceLength: 1024, Pieces: string(make([]byte, 20))})
	_, err := NewInfo(raw)
	require.Error(t, err)
}

func TestNewInfoHashIsDeterministic(t *testing.T) {
	raw := encodeInfoDict(t, infoDict{Name: "x", PieceLength: 1024, Pieces: string(make([]byte, 20)), Length: 1})
	a, err := NewInfo(raw)
	require.NoError(t, err)
	b, err := NewInfo(raw)
	require.NoError(t, err)
	require.Equal(t, a.Hash, b.Hash)
}

func TestGetTrackersDedupesAcrossAnnounceList(t *testing.T) {
	m := &MetaInfo{
		Announce: "http://a.example/announce",
		AnnounceList: [][]string{
			{"http://a.example/announce", "http://b.example/announce"},
		},
	}
	require.Equal(t, []string{"http://a.example/announce", "http://b.example/announce"}, m.GetTrackers())
}
