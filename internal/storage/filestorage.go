// Package storage implements on-disk piece storage, grounded on the
// teacher's session.go reference to internal/storage/filestorage (its
// source wasn't retrieved; this reimplements the same Dest()/New(dest)
// contract inferred from that usage).
package storage

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kagen/torrentd/internal/metainfo"
)

type span struct {
	path   string
	offset int64 // offset of this file's first byte within the torrent's flat byte space
	length int64
}

// FileStorage maps a torrent's flat piece/byte space onto one or more
// files rooted at dest, opening file handles lazily and caching them.
type FileStorage struct {
	dest  string
	spans []span

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates (but does not yet open) file-backed storage rooted at dest.
func New(dest string) (*FileStorage, error) {
	if err := os.MkdirAll(dest, 0750); err != nil {
		return nil, err
	}
	return &FileStorage{dest: dest, files: make(map[string]*os.File)}, nil
}

// Dest returns the root directory this storage writes into.
func (s *FileStorage) Dest() string { return s.dest }

// Allocate lays out info's files under dest, creating sparse files of the
// right size for random-access ReadAt/WriteAt.
func (s *FileStorage) Allocate(info *metainfo.Info) error {
	var offset int64
	if len(info.Files) == 0 {
		path := filepath.Join(s.dest, info.Name)
		if err := s.touch(path, info.Length); err != nil {
			return err
		}
		s.spans = append(s.spans, span{path: path, offset: 0, length: info.Length})
		return nil
	}
	for _, f := range info.Files {
		parts := append([]string{s.dest, info.Name}, f.Path...)
		path := filepath.Join(parts...)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return err
		}
		if err := s.touch(path, f.Length); err != nil {
			return err
		}
		s.spans = append(s.spans, span{path: path, offset: offset, length: f.Length})
		offset += f.Length
	}
	return nil
}

func (s *FileStorage) touch(path string, length int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(length)
}

func (s *FileStorage) open(path string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[path]; ok {
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0640)
	if err != nil {
		return nil, err
	}
	s.files[path] = f
	return f, nil
}

// ReadAt/WriteAt operate on the torrent's flat byte space, splitting
// across file spans as needed for requests that straddle a file boundary
// in a multi-file torrent.
func (s *FileStorage) ReadAt(p []byte, off int64) (int, error) {
	return s.io(p, off, false)
}

func (s *FileStorage) WriteAt(p []byte, off int64) (int, error) {
	return s.io(p, off, true)
}

func (s *FileStorage) io(p []byte, off int64, write bool) (int, error) {
	var n int
	for len(p) > 0 {
		sp, found := s.spanAt(off)
		if !found {
			return n, io.ErrUnexpectedEOF
		}
		f, err := s.open(sp.path)
		if err != nil {
			return n, err
		}
		localOff := off - sp.offset
		avail := sp.length - localOff
		chunk := p
		if int64(len(chunk)) > avail {
			chunk = chunk[:avail]
		}
		var m int
		if write {
			m, err = f.WriteAt(chunk, localOff)
		} else {
			m, err = f.ReadAt(chunk, localOff)
		}
		n += m
		off += int64(m)
		p = p[m:]
		if err != nil && err != io.EOF {
			return n, err
		}
		if m == 0 {
			return n, io.ErrUnexpectedEOF
		}
	}
	return n, nil
}

func (s *FileStorage) spanAt(off int64) (span, bool) {
	for _, sp := range s.spans {
		if off >= sp.offset && off < sp.offset+sp.length {
			return sp, true
		}
	}
	return span{}, false
}

// Close releases every open file handle.
func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
