// Package resumer holds the Stats type for a torrent's persisted lifetime
// counters, grounded on the teacher's internal/resumer +
// internal/resumer/boltdbresumer split. It defines no persistence
// interface: the BoltDB-backed Resumer and its Spec live in
// internal/resumer/boltdbresumer.
package resumer

import "time"

// Stats is the subset of a torrent's lifetime counters worth persisting;
// separated from Spec because it changes on every tick while Spec's other
// fields (trackers, destination, info) are effectively static.
type Stats struct {
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
}

