// Package boltdbresumer persists per-torrent fast-resume state in a
// boltdb/bolt database, one nested bucket per torrent id, grounded on the
// teacher's session/session.go (the exact Spec field list is reconstructed
// from its boltdbresumer.Spec{...} literals in AddTorrent/addMagnet/
// loadExistingTorrents).
package boltdbresumer

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
)

// Spec is everything needed to reconstruct a torrent without re-reading
// its original metainfo/magnet source.
type Spec struct {
	InfoHash        []byte
	Dest            string
	Port            int
	Name            string
	Trackers        []string
	Info            []byte
	Bitfield        []byte
	CreatedAt       time.Time
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
	Started         bool
}

const startedKey = "started"
const specKey = "spec"

// EnsureBuckets creates the top-level torrents bucket if it doesn't exist
// yet; called once from session.New.
func EnsureBuckets(db *bolt.DB, torrentsBucket []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(torrentsBucket)
		return err
	})
}

// Resumer reads and writes one torrent's Spec under torrentsBucket/id.
type Resumer struct {
	db     *bolt.DB
	bucket []byte
	id     []byte
}

func New(db *bolt.DB, bucket, id []byte) (*Resumer, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.Bucket(bucket).CreateBucketIfNotExists(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{db: db, bucket: bucket, id: id}, nil
}

func (r *Resumer) Write(spec *Spec) error {
	buf, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket(r.id)
		return b.Put([]byte(specKey), buf)
	})
}

func (r *Resumer) Read() (*Spec, error) {
	var spec Spec
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket(r.id)
		buf := b.Get([]byte(specKey))
		if buf == nil {
			return nil
		}
		return json.Unmarshal(buf, &spec)
	})
	return &spec, err
}

// SetStarted records whether this torrent should auto-start on the next
// session launch, mirroring the teacher's session.go hasStarted/"started"
// key convention.
func (r *Resumer) SetStarted(started bool) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket(r.id)
		v := []byte("0")
		if started {
			v = []byte("1")
		}
		return b.Put([]byte(startedKey), v)
	})
}

func (r *Resumer) HasStarted() (bool, error) {
	var started bool
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket(r.id)
		v := b.Get([]byte(startedKey))
		started = string(v) == "1"
		return nil
	})
	return started, err
}

// Remove deletes this torrent's bucket entirely.
func (r *Resumer) Remove() error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).DeleteBucket(r.id)
	})
}

// ForEachID calls fn with every torrent id currently stored under bucket.
func ForEachID(db *bolt.DB, bucket []byte, fn func(id string) error) error {
	return db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			if v != nil {
				return nil // skip non-bucket keys
			}
			return fn(string(k))
		})
	})
}
