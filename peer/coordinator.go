package peer

import (
	"context"

	"github.com/gorent/core/piece"
	"github.com/gorent/core/wire"
)

// Coordinator is everything a Session needs from the swarm coordinator
// (C7). It is declared here, on the consumer side, so this package never
// imports the swarm package: the coordinator references sessions only by
// peer key, one-way, per the design's no-cycles rule.
type Coordinator interface {
	// RequestBlock asks for a block this peer (identified by key, with its
	// most recently reported availability bits) can serve. ok is false if
	// no block is currently assignable to this peer.
	RequestBlock(ctx context.Context, key string, bits wire.Bitfield) (pieceIndex int, block *piece.Block, ok bool)

	// DeliverBlock stores a received block against the piece it belongs to.
	DeliverBlock(ctx context.Context, key string, index int, offset int, data []byte)

	// ReportHave and ReportBitfield update the coordinator's availability
	// map for this peer.
	ReportHave(ctx context.Context, key string, index int)
	ReportBitfield(ctx context.Context, key string, bits wire.Bitfield)

	// ReportChoke notifies the coordinator that this peer choked or
	// unchoked us. While the peer is choking us it is assigned no new
	// blocks; blocks already Pending for it stay Pending until Disconnect.
	ReportChoke(ctx context.Context, key string, choked bool)

	// Disconnect tells the coordinator this session is gone: drop it from
	// the availability map and release any blocks still Pending for it.
	Disconnect(ctx context.Context, key string)

	// Completed returns a channel that closes once every piece has been
	// verified. Per §4.7's termination contract, a session observing this
	// sends NotInterested and closes rather than just dropping the
	// connection.
	Completed() <-chan struct{}
}
