package torrentimpl

import (
	"crypto/sha1"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kagen/torrentd/internal/metainfo"
	"github.com/kagen/torrentd/internal/storage"
	"github.com/kagen/torrentd/internal/tracker"
	"github.com/kagen/torrentd/session"
)

func newTestTorrent(t *testing.T, data []byte, pieceLength int64) (*Torrent, *metainfo.Info) {
	t.Helper()
	var pieces []byte
	for off := int64(0); off < int64(len(data)); off += pieceLength {
		end := off + pieceLength
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		sum := sha1.Sum(data[off:end])
		pieces = append(pieces, sum[:]...)
	}
	info := &metainfo.Info{
		Name:        "file.bin",
		PieceLength: pieceLength,
		Pieces:      pieces,
		Length:      int64(len(data)),
	}
	sto, err := storage.New(t.TempDir())
	require.NoError(t, err)
	tr, err := New(info, [20]byte{1}, sto, nil, tracker.NewManager(), nil, 6881, [20]byte{2})
	require.NoError(t, err)

	_, err = sto.WriteAt(data, 0)
	require.NoError(t, err)
	return tr, info
}

func TestVerifyAllMarksCompletePiecesAndSeedsWhenDone(t *testing.T) {
	tr, _ := newTestTorrent(t, []byte("abcdefgh"), 4)
	pieces, err := tr.VerifyAll()
	require.NoError(t, err)
	require.EqualValues(t, 0xC0, pieces[0]) // both of 2 pieces set: 11000000
	require.Equal(t, session.TorrentSeeding, tr.State())
}

func TestVerifyAllLeavesCorruptPieceUnset(t *testing.T) {
	tr, _ := newTestTorrent(t, []byte("abcdefgh"), 4)
	// corrupt the on-disk data after hashing, so piece 1 no longer matches.
	sto := tr.sto
	_, err := sto.WriteAt([]byte("XXXX"), 4)
	require.NoError(t, err)

	pieces, err := tr.VerifyAll()
	require.NoError(t, err)
	require.True(t, pieces[0]&0x80 != 0) // piece 0 still verifies
	require.False(t, pieces[0]&0x40 != 0) // piece 1 corrupted
	require.Equal(t, session.TorrentDownloading, tr.State())
}

func TestFastResumeRoundTripThroughApply(t *testing.T) {
	tr, _ := newTestTorrent(t, []byte("abcdefgh"), 4)
	_, err := tr.VerifyAll()
	require.NoError(t, err)

	data, err := tr.FastResumeData()
	require.NoError(t, err)

	fresh, _ := newTestTorrent(t, []byte("abcdefgh"), 4)
	require.NoError(t, fresh.ApplyFastResume(data, nil))
	require.Equal(t, session.TorrentSeeding, fresh.State())
}

func TestFileSizesMatchSingleFile(t *testing.T) {
	tr, info := newTestTorrent(t, []byte("abcdefgh"), 4)
	require.True(t, tr.FileSizesMatch([][2]int64{{info.Length, 0}}))
	require.False(t, tr.FileSizesMatch([][2]int64{{info.Length + 1, 0}}))
}

func TestAnnounceSkipsWhenNotDue(t *testing.T) {
	tr, _ := newTestTorrent(t, []byte("ab"), 2)
	tr.lastAnnounce = time.Now()
	tr.announced = true
	tr.trackers = []string{"http://example.invalid/announce"}
	require.NoError(t, tr.Announce())
}

func TestAnnounceContactsTrackerWhenDue(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte("d8:intervali900e5:peers0:e"))
	}))
	defer srv.Close()

	tr, _ := newTestTorrent(t, []byte("ab"), 2)
	tr.trackers = []string{srv.URL}
	require.NoError(t, tr.Announce())
	require.True(t, called)
	require.Equal(t, 900*time.Second, tr.announceInterval)
}
