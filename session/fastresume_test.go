package session

import (
	"bytes"
	"hash/adler32"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/kagen/torrentd/internal/bitfield"
)

func TestFastResumeRoundTrip(t *testing.T) {
	var infoHash [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")

	pieces := bitfield.New(4)
	pieces.Set(0)
	pieces.Set(2)

	mask := []byte{0xF0}
	unfinished := map[int][]byte{1: mask}

	data, err := buildFastResume(infoHash, pieces, unfinished, func(int) uint32 { return adler32.Checksum(mask) })
	require.NoError(t, err)

	// simulate the on-disk block data genuinely matching what was
	// recorded for piece 1, the only unfinished entry.
	result, err := parseFastResume(data, infoHash, 4, 8, func(piece int) uint32 {
		if piece == 1 {
			return adler32.Checksum(mask)
		}
		return 0
	}, nil)
	require.NoError(t, err)
	require.True(t, result.Pieces.Test(0))
	require.True(t, result.Pieces.Test(2))
	require.False(t, result.Pieces.Test(1))
	require.Equal(t, mask, result.Unfinished[1])
}

func TestFastResumeRejectsInfoHashMismatch(t *testing.T) {
	var a, b [20]byte
	copy(a[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(b[:], "bbbbbbbbbbbbbbbbbbbb")

	data, err := buildFastResume(a, bitfield.New(1), nil, func(int) uint32 { return 0 })
	require.NoError(t, err)

	_, err = parseFastResume(data, b, 1, 8, func(int) uint32 { return 0 }, nil)
	require.Error(t, err)
	var ird *InvalidResumeData
	require.ErrorAs(t, err, &ird)
}

func TestFastResumeRejectsUnrecognizedFormat(t *testing.T) {
	var infoHash [20]byte
	_, err := parseFastResume([]byte("d4:spam4:eggse"), infoHash, 1, 8, nil, nil)
	require.Error(t, err)
}

func TestFastResumeDropsUnfinishedOnAdler32Mismatch(t *testing.T) {
	var infoHash [20]byte
	pieces := bitfield.New(2)
	mask := []byte{0xFF}
	unfinished := map[int][]byte{0: mask}

	data, err := buildFastResume(infoHash, pieces, unfinished, func(int) uint32 { return adler32.Checksum(mask) })
	require.NoError(t, err)

	// the on-disk block no longer matches what was recorded (e.g. edited
	// outside the client): pieceAdler32 reports a different checksum.
	result, err := parseFastResume(data, infoHash, 2, 8, func(int) uint32 { return 0xdeadbeef }, nil)
	require.NoError(t, err)
	require.Empty(t, result.Unfinished)
}

func TestFastResumeSurfacesPeerMap(t *testing.T) {
	var infoHash [20]byte

	f := fastResumeFile{
		FileFormat:  fastResumeFileFormat,
		FileVersion: fastResumeFileVersion,
		InfoHash:    string(infoHash[:]),
		Peers:       []string{"203.0.113.1:6881", "198.51.100.7:51413"},
	}
	var buf bytes.Buffer
	require.NoError(t, bencode.NewEncoder(&buf).Encode(&f))

	result, err := parseFastResume(buf.Bytes(), infoHash, 1, 8, func(int) uint32 { return 0 }, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"203.0.113.1:6881", "198.51.100.7:51413"}, result.Peers)
}

func TestFastResumeRejectsFileSizeMismatchWhenComplete(t *testing.T) {
	var infoHash [20]byte

	// buildFastResume never writes FileSizes itself; this test exercises
	// the gate directly against a hand-built blob carrying one.
	f := fastResumeFile{
		FileFormat:  fastResumeFileFormat,
		FileVersion: fastResumeFileVersion,
		InfoHash:    string(infoHash[:]),
		Slots:       []int{0},
		FileSizes:   [][2]int64{{100, 100}},
	}
	var buf bytes.Buffer
	require.NoError(t, bencode.NewEncoder(&buf).Encode(&f))

	_, err := parseFastResume(buf.Bytes(), infoHash, 1, 8, func(int) uint32 { return 0 }, func([][2]int64) bool { return false })
	require.Error(t, err)
}
