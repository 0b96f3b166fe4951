package session

import (
	"bytes"

	"github.com/zeebo/bencode"

	"github.com/kagen/torrentd/internal/bitfield"
)

// fastResumeFileFormat/Version mirror the constants parse_resume_data
// checks against in session.cpp (piece_checker_data::parse_resume_data):
// the format string and a version ceiling, both rejected non-fatally if
// they don't match.
const (
	fastResumeFileFormat  = "libtorrent resume file"
	fastResumeFileVersion = 1
)

// fastResumeFile is the bencoded envelope persisted alongside a torrent's
// data, decoded with zeebo/bencode (the codec the teacher's
// internal/metainfo already depends on — spec §4.G keeps that choice
// rather than introducing a second bencode library).
type fastResumeFile struct {
	FileFormat  string            `bencode:"file-format"`
	FileVersion int               `bencode:"file-version"`
	InfoHash    string            `bencode:"info-hash"`
	Slots       []int             `bencode:"slots,omitempty"`
	Peers       []string          `bencode:"peers,omitempty"`
	Unfinished  []unfinishedPiece `bencode:"unfinished,omitempty"`
	FileSizes   [][2]int64        `bencode:"file sizes,omitempty"`
}

type unfinishedPiece struct {
	Piece   int    `bencode:"piece"`
	Bitmask string `bencode:"bitmask"`
	Adler32 uint32 `bencode:"adler32"`
}

// fastResumeResult is what a successfully validated fast-resume blob
// yields: a complete piece bitfield (derived from Slots) plus, for any
// piece still in progress, its partial per-block bitmask.
type fastResumeResult struct {
	Pieces     *bitfield.Bitfield
	Unfinished map[int][]byte

	// Peers are the {ip, port} candidates persisted in the resume file's
	// peer_map, carried through unparsed (the encoding is whatever the
	// file that produced them used) for the caller to feed to a
	// Torrent's SeedPeers.
	Peers []string
}

// parseFastResume runs the exact validation sequence of
// piece_checker_data::parse_resume_data: format string, version ceiling,
// info-hash match, slot range, a blocks-per-piece gate before the
// unfinished list is trusted (each bitmask's length must match
// blocksPerPiece, its adler32 must match the piece's recorded checksum),
// and finally a file-sizes match when the piece map claims completion.
// Any failure is non-fatal: the caller falls back to full verification.
func parseFastResume(data []byte, infoHash [20]byte, numPieces, blocksPerPiece int, pieceAdler32 func(piece int) uint32, fileSizesMatch func([][2]int64) bool) (*fastResumeResult, error) {
	var f fastResumeFile
	if err := bencode.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, &InvalidResumeData{Reason: "not a bencoded dictionary"}
	}
	if f.FileFormat != fastResumeFileFormat {
		return nil, &InvalidResumeData{Reason: "unrecognized file-format"}
	}
	if f.FileVersion > fastResumeFileVersion {
		return nil, &InvalidResumeData{Reason: "file-version too new"}
	}
	if f.InfoHash != string(infoHash[:]) {
		return nil, &InvalidResumeData{Reason: "info-hash mismatch"}
	}

	pieces := bitfield.New(uint32(numPieces))
	unfinished := make(map[int][]byte)

	for _, slot := range f.Slots {
		switch {
		case slot == -2:
			continue // unallocated slot, per the original's sentinel
		case slot == -1:
			continue
		case slot < -2 || slot >= numPieces:
			return nil, &InvalidResumeData{Reason: "slot index out of range"}
		default:
			pieces.Set(uint32(slot))
		}
	}

	for _, u := range f.Unfinished {
		if u.Piece < 0 || u.Piece >= numPieces {
			continue // ignore: matches the original's "skip bad entries" tolerance
		}
		mask := []byte(u.Bitmask)
		wantLen := (blocksPerPiece + 7) / 8
		if len(mask) != wantLen {
			continue // blocks-per-piece gate: width mismatch means the resume data predates a re-chunked torrent
		}
		if pieceAdler32 != nil && pieceAdler32(u.Piece) != u.Adler32 {
			continue // on-disk bytes don't match the recorded checksum: treat as not-yet-downloaded
		}
		unfinished[u.Piece] = mask
	}

	if pieces.All() && len(f.FileSizes) > 0 && fileSizesMatch != nil {
		if !fileSizesMatch(f.FileSizes) {
			return nil, &InvalidResumeData{Reason: "file sizes do not match"}
		}
	}

	return &fastResumeResult{Pieces: pieces, Unfinished: unfinished, Peers: f.Peers}, nil
}

// buildFastResume serializes the inverse of parseFastResume — called when
// a torrent needs to persist its current state (periodic checkpoint, clean
// shutdown).
func buildFastResume(infoHash [20]byte, pieces *bitfield.Bitfield, unfinished map[int][]byte, pieceAdler32 func(piece int) uint32) ([]byte, error) {
	f := fastResumeFile{
		FileFormat:  fastResumeFileFormat,
		FileVersion: fastResumeFileVersion,
		InfoHash:    string(infoHash[:]),
	}
	for i := uint32(0); i < pieces.Len(); i++ {
		if pieces.Test(i) {
			f.Slots = append(f.Slots, int(i))
		}
	}
	for piece, mask := range unfinished {
		f.Unfinished = append(f.Unfinished, unfinishedPiece{
			Piece:   piece,
			Bitmask: string(mask),
			Adler32: pieceAdler32(piece),
		})
	}
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(&f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
