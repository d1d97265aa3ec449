// Package piece models a torrent's per-piece, per-block acquisition state:
// the block table each Piece maintains, and SHA-1 verification against the
// metainfo-declared hash.
package piece

import (
	"bytes"
	"crypto/sha1"
)

// Status is a block's position in the Missing -> Pending -> Retrieved
// lifecycle.
type Status int

const (
	StatusMissing Status = iota
	StatusPending
	StatusRetrieved
)

// BlockSize is the fixed request size; only the last block of the last
// piece may be shorter.
const BlockSize = 16384

// Block is one fixed-size unit of transfer within a piece.
type Block struct {
	Offset int
	Length int
	Data   []byte
	Status Status
}

// Piece is one fixed-size segment of the torrent content: an index, its
// expected hash, and an ordered list of blocks. Once Verified is true the
// piece's bytes are immutable and this is never un-set.
type Piece struct {
	Index    int
	Hash     [20]byte
	Blocks   []*Block
	Verified bool
}

// New builds a Piece of the given total length (the caller, typically
// NewSet, truncates this for the final piece), populated with Missing
// blocks of BlockSize except possibly the last.
func New(index int, hash [20]byte, length int) *Piece {
	p := &Piece{Index: index, Hash: hash}
	for offset := 0; offset < length; offset += BlockSize {
		blockLen := BlockSize
		if length-offset < blockLen {
			blockLen = length - offset
		}
		p.Blocks = append(p.Blocks, &Block{Offset: offset, Length: blockLen})
	}
	return p
}

// NewSet builds one Piece per hash in hashes, sized from pieceLength and
// the overall content length (the final piece is truncated to fit).
func NewSet(hashes [][20]byte, totalLength, pieceLength int64) []*Piece {
	pieces := make([]*Piece, len(hashes))
	for i, h := range hashes {
		begin := int64(i) * pieceLength
		end := begin + pieceLength
		if end > totalLength {
			end = totalLength
		}
		pieces[i] = New(i, h, int(end-begin))
	}
	return pieces
}

// NextMissingBlock returns the first Missing block, marking it Pending, or
// nil if none remain (the piece may still be incomplete if blocks are
// Pending elsewhere, or may already be complete/verified).
func (p *Piece) NextMissingBlock() *Block {
	if p.Verified {
		return nil
	}
	for _, b := range p.Blocks {
		if b.Status == StatusMissing {
			b.Status = StatusPending
			return b
		}
	}
	return nil
}

// DeliverBlock stores data for the block at offset if it is known and
// Pending, marking it Retrieved. Unknown offsets (a buggy or malicious
// peer) are silently dropped: it returns false but takes no other action.
func (p *Piece) DeliverBlock(offset int, data []byte) bool {
	if p.Verified {
		return false
	}
	for _, b := range p.Blocks {
		if b.Offset != offset {
			continue
		}
		if b.Status != StatusPending {
			return false
		}
		if len(data) != b.Length {
			return false
		}
		b.Data = data
		b.Status = StatusRetrieved
		return true
	}
	return false
}

// ResetBlock reverts a single block (e.g. one assigned to a peer that just
// disconnected) from Pending back to Missing. It is a no-op for any other
// status, since a Retrieved or already-Missing block needs no action and a
// Verified piece never reverts.
func (p *Piece) ResetBlock(offset int) {
	if p.Verified {
		return
	}
	for _, b := range p.Blocks {
		if b.Offset == offset && b.Status == StatusPending {
			b.Status = StatusMissing
		}
	}
}

// IsComplete reports whether every block has been Retrieved.
func (p *Piece) IsComplete() bool {
	for _, b := range p.Blocks {
		if b.Status != StatusRetrieved {
			return false
		}
	}
	return true
}

// Verify concatenates the retrieved blocks in offset order and checks
// SHA-1 equality with the expected hash. On success the piece transitions
// to Verified, permanently. On mismatch every block reverts to Missing and
// its data is cleared so the piece is re-downloaded from scratch.
func (p *Piece) Verify() bool {
	if p.Verified {
		return true
	}
	buf := bytes.NewBuffer(make([]byte, 0, p.length()))
	for _, b := range p.Blocks {
		buf.Write(b.Data)
	}
	sum := sha1.Sum(buf.Bytes())
	if sum != p.Hash {
		p.reset()
		return false
	}
	p.Verified = true
	return true
}

// Bytes returns the piece's assembled content. Only meaningful once
// Verified is true.
func (p *Piece) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, p.length()))
	for _, b := range p.Blocks {
		buf.Write(b.Data)
	}
	return buf.Bytes()
}

func (p *Piece) length() int {
	n := 0
	for _, b := range p.Blocks {
		n += b.Length
	}
	return n
}

func (p *Piece) reset() {
	for _, b := range p.Blocks {
		b.Status = StatusMissing
		b.Data = nil
	}
}
