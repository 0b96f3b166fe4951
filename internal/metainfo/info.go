package metainfo

import (
	"crypto/sha1"
	"errors"

	"github.com/zeebo/bencode"
)

// fileDict is one entry of a multi-file torrent's "files" list (BEP3).
type fileDict struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// File is a single-file-within-torrent path and size, resolved against the
// torrent's Name to get its on-disk path.
type File struct {
	Path   []string
	Length int64
}

// Info is the decoded "info" dictionary: everything needed to verify and
// store a torrent's pieces, independent of tracker/announce metadata.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      []byte // concatenated 20-byte SHA1 hashes, one per piece
	Private     int
	Length      int64  // single-file torrents only
	Files       []File // multi-file torrents only; empty for single-file
	Hash        [20]byte
	Bytes       []byte // the raw bencoded info dict, for resume persistence
}

type infoDict struct {
	Name        string     `bencode:"name"`
	PieceLength int64      `bencode:"piece length"`
	Pieces      string     `bencode:"pieces"`
	Private     int        `bencode:"private"`
	Length      int64      `bencode:"length,omitempty"`
	Files       []fileDict `bencode:"files,omitempty"`
}

// NewInfo decodes a raw bencoded info dictionary, as stored verbatim in
// MetaInfo.RawInfo so its SHA1 hash can be computed over the exact bytes
// the original torrent file carried.
func NewInfo(raw []byte) (*Info, error) {
	var d infoDict
	if err := bencode.DecodeBytes(raw, &d); err != nil {
		return nil, err
	}
	if d.PieceLength <= 0 {
		return nil, errors.New("metainfo: invalid piece length")
	}
	if len(d.Pieces)%20 != 0 {
		return nil, errors.New("metainfo: invalid pieces length")
	}
	info := &Info{
		Name:        d.Name,
		PieceLength: d.PieceLength,
		Pieces:      []byte(d.Pieces),
		Private:     d.Private,
		Length:      d.Length,
		Hash:        sha1.Sum(raw),
		Bytes:       append([]byte(nil), raw...),
	}
	for _, f := range d.Files {
		info.Files = append(info.Files, File{Path: f.Path, Length: f.Length})
	}
	if len(info.Files) == 0 && info.Length == 0 {
		return nil, errors.New("metainfo: neither length nor files present")
	}
	return info, nil
}

// NumPieces returns the number of pieces implied by Pieces' length.
func (i *Info) NumPieces() int { return len(i.Pieces) / 20 }

// TotalLength returns the sum of all file lengths (or Length, for a
// single-file torrent).
func (i *Info) TotalLength() int64 {
	if len(i.Files) == 0 {
		return i.Length
	}
	var total int64
	for _, f := range i.Files {
		total += f.Length
	}
	return total
}

// PieceHash returns the expected SHA1 hash of piece index i.
func (i *Info) PieceHash(index int) []byte {
	return i.Pieces[index*20 : index*20+20]
}

// PieceLengthAt returns the length of piece index i, accounting for the
// torrent's final, possibly-shorter piece.
func (i *Info) PieceLengthAt(index int) int64 {
	if index == i.NumPieces()-1 {
		rem := i.TotalLength() % i.PieceLength
		if rem != 0 {
			return rem
		}
	}
	return i.PieceLength
}

// GetTrackers flattens a MetaInfo's Announce/AnnounceList into the
// deduplicated tier-order list a torrent's tracker manager actually dials.
func (m *MetaInfo) GetTrackers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(m.Announce)
	for _, tier := range m.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	return out
}
