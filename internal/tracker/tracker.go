// Package tracker implements the HTTP tracker announce protocol (BEP3),
// adapted from the teacher's internal/tracker.Torrent request struct, with
// retries via cenkalti/backoff — the same retry library the rest of the
// retrieval pack (uber-kraken) leans on for its own upstream calls.
package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/zeebo/bencode"
)

// Torrent is the per-announce request payload, unchanged from the
// teacher's internal/tracker/torrent.go.
type Torrent struct {
	BytesUploaded   int64
	BytesDownloaded int64
	BytesLeft       int64
	InfoHash        [20]byte
	PeerID          [20]byte
	Port            int
}

type Event string

const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventStopped   Event = "stopped"
	EventCompleted Event = "completed"
)

// Peer is one (IP, port) pair returned by a tracker's compact peer list.
type Peer struct {
	IP   net.IP
	Port uint16
}

// AnnounceResponse is the decoded tracker reply.
type AnnounceResponse struct {
	Interval   int
	MinInterval int
	Peers      []Peer
	Warning    string
}

type bencodeResponse struct {
	FailureReason string `bencode:"failure reason"`
	Warning       string `bencode:"warning message"`
	Interval      int    `bencode:"interval"`
	MinInterval   int    `bencode:"min interval"`
	Peers         string `bencode:"peers"`
}

// Client announces to a single tracker URL over HTTP, retrying transient
// failures with exponential backoff.
type Client struct {
	URL       string
	Timeout   time.Duration
	UserAgent string

	httpClient *http.Client
}

func NewClient(trackerURL string, timeout time.Duration, userAgent string) *Client {
	return &Client{
		URL:        trackerURL,
		Timeout:    timeout,
		UserAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Announce performs one announce, retrying up to 3 times with exponential
// backoff on transport errors. A well-formed tracker failure response
// ("failure reason") is returned as an error without retrying — retrying
// won't fix a tracker that rejected the request.
func (c *Client) Announce(ctx context.Context, t Torrent, event Event, numwant int) (*AnnounceResponse, error) {
	var resp *AnnounceResponse
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.Timeout * 3
	op := func() error {
		r, err := c.announceOnce(ctx, t, event, numwant)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) announceOnce(ctx context.Context, t Torrent, event Event, numwant int) (*AnnounceResponse, error) {
	q := url.Values{}
	q.Set("info_hash", string(t.InfoHash[:]))
	q.Set("peer_id", string(t.PeerID[:]))
	q.Set("port", strconv.Itoa(t.Port))
	q.Set("uploaded", strconv.FormatInt(t.BytesUploaded, 10))
	q.Set("downloaded", strconv.FormatInt(t.BytesDownloaded, 10))
	q.Set("left", strconv.FormatInt(t.BytesLeft, 10))
	q.Set("compact", "1")
	q.Set("numwant", strconv.Itoa(numwant))
	if event != EventNone {
		q.Set("event", string(event))
	}

	u := c.URL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // transient: retry
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker: unexpected status %d", httpResp.StatusCode)
	}

	var br bencodeResponse
	if err := bencode.NewDecoder(httpResp.Body).Decode(&br); err != nil {
		return nil, backoff.Permanent(err)
	}
	if br.FailureReason != "" {
		return nil, backoff.Permanent(fmt.Errorf("tracker: %s", br.FailureReason))
	}

	peers, err := decodeCompactPeers([]byte(br.Peers))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return &AnnounceResponse{
		Interval:    br.Interval,
		MinInterval: br.MinInterval,
		Peers:       peers,
		Warning:     br.Warning,
	}, nil
}

func decodeCompactPeers(b []byte) ([]Peer, error) {
	if len(b)%6 != 0 {
		return nil, fmt.Errorf("tracker: invalid compact peer list length %d", len(b))
	}
	peers := make([]Peer, 0, len(b)/6)
	for i := 0; i < len(b); i += 6 {
		ip := net.IP(b[i : i+4])
		port := binary.BigEndian.Uint16(b[i+4 : i+6])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}
