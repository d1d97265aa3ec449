// Package writer implements the file writer (C8): the piece-to-file
// mapping and the on-disk assembler that lands a verified piece's bytes
// at the right offset(s) once the coordinator calls WritePiece.
package writer

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gorent/core/metainfo"
	"github.com/pkg/errors"
)

// Slice is one piece's contribution to a single file: length bytes of
// that piece, starting at offsetInPiece, land at offsetInFile in the
// file. length is always a byte count, never an end offset (§4.8, §9
// fixes the distilled spec's flagged ambiguity here).
type Slice struct {
	File          string
	OffsetInPiece int
	OffsetInFile  int64
	Length        int
}

// BuildLayout computes the piece-to-file mapping: for each piece index,
// the ordered list of Slices across whichever file(s) that piece's bytes
// belong to. It is a pure function of piece_length and the files list (or
// the single-file length), and does not touch the filesystem.
func BuildLayout(info *metainfo.Info) [][]Slice {
	files := info.Files
	if files == nil {
		files = []metainfo.FileEntry{{Path: info.Name, Length: info.Length}}
	}

	layout := make([][]Slice, len(info.PieceHashes))

	var fileOffset int64 // this file's start within the concatenated content space
	for _, f := range files {
		remaining := f.Length
		contentPos := fileOffset // position within the concatenated content space
		for remaining > 0 {
			pieceIndex := int(contentPos / info.PieceLength)
			offsetInPiece := int(contentPos % info.PieceLength)
			pieceBytesLeft := info.PieceLength - int64(offsetInPiece)
			n := pieceBytesLeft
			if remaining < n {
				n = remaining
			}
			layout[pieceIndex] = append(layout[pieceIndex], Slice{
				File:          f.Path,
				OffsetInPiece: offsetInPiece,
				OffsetInFile:  contentPos - fileOffset,
				Length:        int(n),
			})
			contentPos += n
			remaining -= n
		}
		fileOffset += f.Length
	}
	return layout
}

// Assembler writes verified piece bytes to their final location under
// baseDir, per the layout BuildLayout computed for the torrent. Files are
// pre-sized with Truncate on first touch so concurrent piece writes never
// race on file growth, and written to thereafter with WriteAt at the
// slice's offset, which never overlaps another slice by construction of
// the mapping.
type Assembler struct {
	baseDir string
	layout  [][]Slice
	files   map[string]*metainfo.FileEntry

	mu   sync.Mutex
	open map[string]*os.File
}

// NewAssembler builds an Assembler rooted at baseDir for the given
// torrent descriptor. The layout is computed once, eagerly, since it
// depends only on data fixed at metainfo-load time.
func NewAssembler(baseDir string, info *metainfo.Info) *Assembler {
	entries := info.Files
	if entries == nil {
		entries = []metainfo.FileEntry{{Path: info.Name, Length: info.Length}}
	}
	files := make(map[string]*metainfo.FileEntry, len(entries))
	for i := range entries {
		e := entries[i]
		files[e.Path] = &e
	}
	return &Assembler{
		baseDir: baseDir,
		layout:  BuildLayout(info),
		files:   files,
		open:    make(map[string]*os.File),
	}
}

// WritePiece writes a verified piece's assembled bytes to every file it
// overlaps, at the correct offset in each. It is safe to call from
// multiple goroutines for different pieces concurrently: per-file writes
// never overlap because the layout partitions each file's bytes across
// disjoint piece slices.
func (a *Assembler) WritePiece(index uint32, data []byte) error {
	if int(index) >= len(a.layout) {
		return errors.Errorf("writer: piece index %d out of range", index)
	}
	for _, s := range a.layout[index] {
		if s.OffsetInPiece+s.Length > len(data) {
			return errors.Errorf("writer: piece %d slice for %q exceeds piece data (have %d bytes)", index, s.File, len(data))
		}
		f, err := a.fileFor(s.File)
		if err != nil {
			return errors.Wrapf(err, "writer: opening %q", s.File)
		}
		chunk := data[s.OffsetInPiece : s.OffsetInPiece+s.Length]
		if _, err := f.WriteAt(chunk, s.OffsetInFile); err != nil {
			return errors.Wrapf(err, "writer: writing %q at offset %d", s.File, s.OffsetInFile)
		}
	}
	return nil
}

// fileFor returns the open *os.File for path, creating and truncating it
// to its final size on first touch.
func (a *Assembler) fileFor(path string) (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if f, ok := a.open[path]; ok {
		return f, nil
	}

	full := filepath.Join(a.baseDir, path)
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	entry := a.files[path]
	if entry != nil {
		if err := f.Truncate(entry.Length); err != nil {
			f.Close()
			return nil, err
		}
	}
	a.open[path] = f
	return f, nil
}

// Close closes every file the assembler has opened.
func (a *Assembler) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, f := range a.open {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
