// Package swarm implements the swarm coordinator (C7): the shared state
// that aggregates per-peer availability, tracks piece/block status, and
// assigns blocks to requesting peer sessions. Its state is owned by a
// single goroutine and driven exclusively through typed requests sent
// over a channel, so no mutex is needed (§9 of the design notes picks
// message-passing over an explicit lock).
package swarm

import (
	"context"
	"crypto/rand"

	"github.com/gorent/core/metainfo"
	"github.com/gorent/core/piece"
	"github.com/gorent/core/wire"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Writer is what the coordinator hands a verified piece's bytes to. It is
// satisfied by the writer package's Assembler.
type Writer interface {
	WritePiece(index uint32, data []byte) error
}

// peerState is the coordinator's per-peer bookkeeping: claimed
// availability and the set of blocks currently outstanding to it.
type peerState struct {
	bits    wire.Bitfield
	choked  bool
	pending map[pendingKey]bool
}

type pendingKey struct {
	pieceIndex int
	offset     int
}

// Coordinator holds the torrent descriptor, the per-peer availability
// map, the piece vector and the local peer-id, and serializes every
// mutation through its own goroutine (Run).
type Coordinator struct {
	torrent *metainfo.TorrentFile
	peerID  [20]byte
	writer  Writer
	log     *logrus.Entry

	pieces []*piece.Piece
	peers  map[string]*peerState

	requests  chan func()
	done      chan struct{}
	completed chan struct{}
	fatalErr  error // set from inside a request closure; only Run reads it
}

// New builds a Coordinator for torrent, ready to be started with Run. It
// constructs one Piece per metainfo hash (C6) up front.
func New(torrent *metainfo.TorrentFile, writer Writer, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		torrent:  torrent,
		peerID:   generatePeerID(),
		writer:   writer,
		log:      log.WithField("component", "swarm"),
		pieces:    piece.NewSet(torrent.Info.PieceHashes, torrent.Info.Length, torrent.Info.PieceLength),
		peers:     make(map[string]*peerState),
		requests:  make(chan func()),
		done:      make(chan struct{}),
		completed: make(chan struct{}),
	}
}

// PeerID returns the 20-byte peer-id this coordinator announces to
// trackers and peers.
func (c *Coordinator) PeerID() [20]byte { return c.peerID }

// generatePeerID builds a 20-byte ASCII peer-id: a hyphen-delimited
// client prefix followed by 12 decimal digits drawn from a uniform
// random source (§4.7). Uniqueness only needs to hold per session, not
// globally, so crypto/rand is a convenient entropy source here.
func generatePeerID() [20]byte {
	const prefix = "-GR0010-"
	var entropy [12]byte
	_, _ = rand.Read(entropy[:])
	var id [20]byte
	copy(id[:], prefix)
	for i, b := range entropy {
		id[len(prefix)+i] = '0' + b%10
	}
	return id
}

// IsComplete reports whether every piece has been verified. Safe to call
// only from the coordinator's own goroutine (i.e. from inside Run, or
// after Done has closed).
func (c *Coordinator) IsComplete() bool {
	for _, p := range c.pieces {
		if !p.Verified {
			return false
		}
	}
	return true
}

// Run starts the coordinator's owning goroutine and blocks until ctx is
// cancelled or every piece has been verified, whichever happens first. It
// is meant to run as one of the goroutines in the top-level errgroup
// alongside the peer sessions (§5, §11).
// Run also stops, returning that error, the first time a request closure
// records a fatal error (currently: a file-writer failure on a verified
// piece — §7 treats that as unrecoverable for the run as a whole, since a
// download that cannot land bytes on disk cannot make forward progress).
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	if c.IsComplete() {
		close(c.completed)
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.requests:
			fn()
			if c.fatalErr != nil {
				return c.fatalErr
			}
			if c.IsComplete() {
				c.log.Info("download complete")
				close(c.completed)
				return nil
			}
		}
	}
}

// Done reports the channel that closes once Run has returned, for whatever
// reason (completion, cancellation, or a fatal error). Callers that only
// care about genuine completion want Completed instead.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Completed reports the channel that closes only once every piece has been
// verified (§4.7's termination condition), never on cancellation or a
// fatal error. Peer sessions watch this to know when to send NotInterested
// and close gracefully instead of just dropping the connection.
func (c *Coordinator) Completed() <-chan struct{} { return c.completed }

// do runs fn on the coordinator's owning goroutine and blocks until it
// has completed, or ctx is cancelled first. Every exported method below
// is built on this primitive so the coordinator's maps and piece vector
// are never touched from more than one goroutine at a time.
func (c *Coordinator) do(ctx context.Context, fn func()) {
	done := make(chan struct{})
	wrapped := func() { fn(); close(done) }
	select {
	case c.requests <- wrapped:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (c *Coordinator) peer(key string) *peerState {
	p, ok := c.peers[key]
	if !ok {
		p = &peerState{pending: make(map[pendingKey]bool)}
		c.peers[key] = p
	}
	return p
}

// ReportBitfield records a peer's initial BitField snapshot (§4.5).
func (c *Coordinator) ReportBitfield(ctx context.Context, key string, bits wire.Bitfield) {
	c.do(ctx, func() {
		c.peer(key).bits = bits
	})
}

// ReportHave records a single monotonic availability claim (§4.5).
func (c *Coordinator) ReportHave(ctx context.Context, key string, index int) {
	c.do(ctx, func() {
		p := c.peer(key)
		if p.bits == nil || index >= len(p.bits)*8 {
			grown := wire.NewBitfield(index + 1)
			copy(grown, p.bits)
			p.bits = grown
		}
		p.bits.Set(index)
	})
}

// ReportChoke records whether the peer identified by key has us choked.
// While choked, RequestBlock returns nothing for that peer, matching the
// local-effect/coordinator-effect split in §4.5's handling table.
func (c *Coordinator) ReportChoke(ctx context.Context, key string, choked bool) {
	c.do(ctx, func() {
		c.peer(key).choked = choked
	})
}

// RequestBlock implements the block assignment policy (§4.7): scan
// pieces in ascending index and return the first Missing block the peer
// claims to have, marking it Pending. ok is false if the peer is choking
// us or no assignable block exists right now.
func (c *Coordinator) RequestBlock(ctx context.Context, key string, bits wire.Bitfield) (int, *piece.Block, bool) {
	var (
		outIndex int
		outBlock *piece.Block
		found    bool
	)
	c.do(ctx, func() {
		p := c.peer(key)
		if p.choked {
			return
		}
		for _, pc := range c.pieces {
			if pc.Verified || !bits.Has(pc.Index) {
				continue
			}
			if b := pc.NextMissingBlock(); b != nil {
				p.pending[pendingKey{pc.Index, b.Offset}] = true
				outIndex, outBlock, found = pc.Index, b, true
				return
			}
		}
	})
	return outIndex, outBlock, found
}

// DeliverBlock stores a received block against its piece (§4.6) and, once
// the piece is complete, verifies it and hands the assembled bytes to the
// writer. A hash mismatch resets the piece for re-acquisition from other
// peers (§4.7's "on piece completion" rule).
func (c *Coordinator) DeliverBlock(ctx context.Context, key string, index, offset int, data []byte) {
	c.do(ctx, func() {
		if index < 0 || index >= len(c.pieces) {
			c.log.WithFields(logrus.Fields{"peer": key, "piece": index}).Warn("block for unknown piece index dropped")
			return
		}
		pc := c.pieces[index]
		if !pc.DeliverBlock(offset, data) {
			c.log.WithFields(logrus.Fields{"peer": key, "piece": index, "offset": offset}).Warn("unsolicited or duplicate block dropped")
			return
		}
		delete(c.peer(key).pending, pendingKey{index, offset})
		if !pc.IsComplete() {
			return
		}
		if !pc.Verify() {
			c.log.WithField("piece", index).Warn("piece hash mismatch, resetting for re-download")
			return
		}
		if err := c.writer.WritePiece(uint32(index), pc.Bytes()); err != nil {
			c.log.WithError(err).WithField("piece", index).Error("failed to write verified piece")
			c.fatalErr = errors.Wrapf(err, "writing piece %d", index)
		}
	})
}

// Disconnect drops a peer from the availability map and resets every
// block that was Pending against it back to Missing (§4.5, §4.7).
func (c *Coordinator) Disconnect(ctx context.Context, key string) {
	c.do(ctx, func() {
		p, ok := c.peers[key]
		if !ok {
			return
		}
		for pk := range p.pending {
			if pk.pieceIndex >= 0 && pk.pieceIndex < len(c.pieces) {
				c.pieces[pk.pieceIndex].ResetBlock(pk.offset)
			}
		}
		delete(c.peers, key)
	})
}
