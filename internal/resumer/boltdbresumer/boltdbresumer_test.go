package boltdbresumer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"
)

var torrentsBucket = []byte("torrents")

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.db")
	db, err := bolt.Open(path, 0640, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureBuckets(db, torrentsBucket))
	return db
}

func TestWriteReadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, torrentsBucket, []byte("abc"))
	require.NoError(t, err)

	want := &Spec{InfoHash: []byte("12345678901234567890"), Name: "foo", Port: 6881}
	require.NoError(t, r.Write(want))

	got, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Port, got.Port)
	require.Equal(t, want.InfoHash, got.InfoHash)
}

func TestReadBeforeWriteReturnsZeroSpec(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, torrentsBucket, []byte("abc"))
	require.NoError(t, err)

	got, err := r.Read()
	require.NoError(t, err)
	require.Empty(t, got.Name)
}

func TestSetStartedHasStarted(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, torrentsBucket, []byte("abc"))
	require.NoError(t, err)

	started, err := r.HasStarted()
	require.NoError(t, err)
	require.False(t, started)

	require.NoError(t, r.SetStarted(true))
	started, err = r.HasStarted()
	require.NoError(t, err)
	require.True(t, started)
}

func TestRemoveDeletesBucket(t *testing.T) {
	db := openTestDB(t)
	r, err := New(db, torrentsBucket, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, r.Write(&Spec{Name: "foo"}))
	require.NoError(t, r.Remove())

	_, err = New(db, torrentsBucket, []byte("abc")) // recreated fresh
	require.NoError(t, err)
}

func TestForEachIDListsAllTorrents(t *testing.T) {
	db := openTestDB(t)
	_, err := New(db, torrentsBucket, []byte("id1"))
	require.NoError(t, err)
	_, err = New(db, torrentsBucket, []byte("id2"))
	require.NoError(t, err)

	var ids []string
	require.NoError(t, ForEachID(db, torrentsBucket, func(id string) error {
		ids = append(ids, id)
		return nil
	}))
	require.ElementsMatch(t, []string{"id1", "id2"}, ids)
}
