// Package peer drives one TCP connection to a remote peer: the
// handshake, the choke/interest state machine, and the read loop that
// turns wire frames into coordinator calls and outbound requests.
package peer

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/gorent/core/piece"
	"github.com/gorent/core/wire"
	"github.com/sirupsen/logrus"
)

// state is a session's position in the INIT -> CONNECTED -> AWAIT_HS ->
// HANDSHAKED -> MESSAGING -> CLOSING -> CLOSED lifecycle.
type state int

const (
	stateInit state = iota
	stateConnected
	stateAwaitHandshake
	stateHandshaked
	stateMessaging
	stateClosing
	stateClosed
)

const (
	dialTimeout      = 3 * time.Second
	handshakeTimeout = 5 * time.Second
	keepAliveEvery   = 2 * time.Minute
)

// Session is one peer connection and its local choke/interest state. The
// zero value is not usable; build one with Dial.
type Session struct {
	conn net.Conn
	key  string // coordinator's identity for this peer, e.g. "ip:port"

	coord Coordinator
	log   *logrus.Entry

	state state

	amChoking      bool
	amInterested   bool
	peerChoking    bool
	peerInterested bool
	availability   wire.Bitfield

	outstandingPieceIndex int
	outstandingBlock      *piece.Block
}

// Dial opens a TCP connection to addr, completes the handshake, and
// returns a Session ready for Serve. handshake may only happen once per
// session, which Dial enforces by being the only path that performs it.
func Dial(addr string, infoHash, peerID [20]byte, coord Coordinator, log *logrus.Entry) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, newError("dial %s: %s", addr, err)
	}

	s := &Session{
		conn:        conn,
		key:         addr,
		coord:       coord,
		log:         log.WithFields(logrus.Fields{"component": "peer", "peer": addr}),
		state:       stateConnected,
		amChoking:   true,
		peerChoking: true,
	}

	if err := s.handshake(infoHash, peerID); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake(infoHash, peerID [20]byte) error {
	if s.state != stateConnected {
		return newError("handshake invoked out of order (state=%d)", s.state)
	}
	s.state = stateAwaitHandshake

	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	if _, err := s.conn.Write(wire.NewHandshake(infoHash, peerID).Encode()); err != nil {
		return newError("sending handshake: %s", err)
	}

	resp, err := wire.ReadHandshake(s.conn)
	if err != nil {
		return newError("reading handshake: %s", err)
	}
	if !bytes.Equal(resp.InfoHash[:], infoHash[:]) {
		return newError("handshake info-hash mismatch: got %x want %x", resp.InfoHash, infoHash)
	}

	s.state = stateHandshaked
	return nil
}

// Serve runs the session's post-handshake lifecycle: send Interested,
// then loop reading frames until ctx is cancelled or a fatal error
// occurs. It always reports the disconnect to the coordinator before
// returning, and always closes the connection.
func (s *Session) Serve(ctx context.Context) error {
	if s.state != stateHandshaked {
		return newError("Serve invoked before a successful handshake")
	}
	defer s.conn.Close()
	defer s.coord.Disconnect(ctx, s.key)

	s.state = stateMessaging
	s.amInterested = true
	if _, err := s.conn.Write(wire.Encode(wire.Interested{})); err != nil {
		return newError("sending interested: %s", err)
	}

	frames := make(chan wire.Message)
	readErrs := make(chan error, 1)
	go s.readLoop(frames, readErrs)

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-s.coord.Completed():
			return s.sayGoodbye()

		case <-ctx.Done():
			// Completion also leads to ctx being cancelled; when both are
			// ready, completion wins so NotInterested is still sent.
			select {
			case <-s.coord.Completed():
				return s.sayGoodbye()
			default:
			}
			s.state = stateClosing
			s.state = stateClosed
			return ctx.Err()

		case err := <-readErrs:
			s.state = stateClosing
			s.state = stateClosed
			return newError("%s: %s", s.key, err)

		case msg := <-frames:
			if err := s.handleFrame(ctx, msg); err != nil {
				s.state = stateClosing
				s.state = stateClosed
				return err
			}
			if err := s.maybeRequestNext(ctx); err != nil {
				s.state = stateClosing
				s.state = stateClosed
				return err
			}

		case <-keepAlive.C:
			if _, err := s.conn.Write(wire.Encode(wire.KeepAlive{})); err != nil {
				s.state = stateClosing
				s.state = stateClosed
				return newError("sending keepalive: %s", err)
			}
		}
	}
}

// sayGoodbye implements §4.7's termination contract: once the coordinator
// reports every piece verified, the session sends NotInterested before
// closing instead of just dropping the connection.
func (s *Session) sayGoodbye() error {
	s.state = stateClosing
	s.amInterested = false
	_, err := s.conn.Write(wire.Encode(wire.NotInterested{}))
	s.state = stateClosed
	if err != nil {
		return newError("sending not-interested: %s", err)
	}
	return nil
}

func (s *Session) readLoop(out chan<- wire.Message, errs chan<- error) {
	for {
		// Every frame, KeepAlive included, resets the idle timer: a frame
		// not fully read within 2×keepAliveEvery ends the session.
		s.conn.SetReadDeadline(time.Now().Add(2 * keepAliveEvery))
		msg, err := wire.ReadMessage(s.conn)
		if err != nil {
			errs <- err
			return
		}
		out <- msg
	}
}

// handleFrame applies §4.5's per-frame effect table.
func (s *Session) handleFrame(ctx context.Context, msg wire.Message) error {
	switch m := msg.(type) {
	case wire.Choke:
		s.peerChoking = true
		s.coord.ReportChoke(ctx, s.key, true)
	case wire.Unchoke:
		s.peerChoking = false
		s.coord.ReportChoke(ctx, s.key, false)
	case wire.Interested:
		s.peerInterested = true
	case wire.NotInterested:
		s.peerInterested = false
	case wire.Have:
		if s.availability == nil {
			s.availability = wire.NewBitfield(int(m.Index) + 1)
		}
		s.availability.Set(int(m.Index))
		s.coord.ReportHave(ctx, s.key, int(m.Index))
	case wire.BitFieldMsg:
		s.availability = m.Bits
		s.coord.ReportBitfield(ctx, s.key, m.Bits)
	case wire.Piece:
		s.coord.DeliverBlock(ctx, s.key, int(m.Index), int(m.Begin), m.Block)
		if s.outstandingBlock != nil && int(m.Index) == s.outstandingPieceIndex && int(m.Begin) == s.outstandingBlock.Offset {
			s.outstandingBlock = nil
		}
	case wire.Request, wire.Cancel, wire.Port, wire.KeepAlive:
		// ignored in this leech-only core
	}
	return nil
}

// maybeRequestNext asks the coordinator for work whenever we're free to
// request it and nothing is already outstanding for this peer.
func (s *Session) maybeRequestNext(ctx context.Context) error {
	if s.peerChoking || !s.amInterested || s.outstandingBlock != nil {
		return nil
	}
	pieceIndex, block, ok := s.coord.RequestBlock(ctx, s.key, s.availability)
	if !ok {
		return nil
	}
	req := wire.Request{Index: uint32(pieceIndex), Begin: uint32(block.Offset), Length: uint32(block.Length)}
	if _, err := s.conn.Write(wire.Encode(req)); err != nil {
		return newError("sending request: %s", err)
	}
	s.outstandingPieceIndex = pieceIndex
	s.outstandingBlock = block
	return nil
}
