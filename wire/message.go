// Package wire implements the peer-to-peer wire protocol: the fixed
// handshake frame and the length-prefixed, id-tagged messages exchanged
// afterward.
package wire

import (
	"encoding/binary"
	"io"
)

// ID identifies a message's wire tag byte.
type ID uint8

const (
	IDChoke         ID = 0
	IDUnchoke       ID = 1
	IDInterested    ID = 2
	IDNotInterested ID = 3
	IDHave          ID = 4
	IDBitField      ID = 5
	IDRequest       ID = 6
	IDPiece         ID = 7
	IDCancel        ID = 8
	IDPort          ID = 9
)

// BlockSize is the fixed request size in bytes; only the final block of
// the final piece may be shorter.
const BlockSize = 16384

// Message is the tagged union of every peer-wire frame, including
// KeepAlive. Its unexported marker method confines implementations to this
// package, so the session's read-loop type switch (§4.5 of the design) is
// exhaustive in practice.
type Message interface {
	isMessage()
}

type KeepAlive struct{}
type Choke struct{}
type Unchoke struct{}
type Interested struct{}
type NotInterested struct{}
type Have struct{ Index uint32 }
type BitFieldMsg struct{ Bits Bitfield }
type Request struct{ Index, Begin, Length uint32 }
type Piece struct {
	Index, Begin uint32
	Block        []byte
}
type Cancel struct{ Index, Begin, Length uint32 }

// Port carries a DHT listen port. BitTorrent implementations disagree on
// whether the payload is 2 or 4 bytes wide; ReadMessage accepts either and
// Encode always emits the 2-byte form.
type Port struct{ Port uint16 }

func (KeepAlive) isMessage()     {}
func (Choke) isMessage()         {}
func (Unchoke) isMessage()       {}
func (Interested) isMessage()    {}
func (NotInterested) isMessage() {}
func (Have) isMessage()          {}
func (BitFieldMsg) isMessage()   {}
func (Request) isMessage()       {}
func (Piece) isMessage()         {}
func (Cancel) isMessage()        {}
func (Port) isMessage()          {}

// Encode serializes m to its length-prefixed wire form.
func Encode(m Message) []byte {
	switch msg := m.(type) {
	case KeepAlive:
		return []byte{0, 0, 0, 0}
	case Choke:
		return frame(IDChoke, nil)
	case Unchoke:
		return frame(IDUnchoke, nil)
	case Interested:
		return frame(IDInterested, nil)
	case NotInterested:
		return frame(IDNotInterested, nil)
	case Have:
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, msg.Index)
		return frame(IDHave, payload)
	case BitFieldMsg:
		return frame(IDBitField, msg.Bits)
	case Request:
		return frame(IDRequest, encodeIndexBeginLength(msg.Index, msg.Begin, msg.Length))
	case Piece:
		payload := make([]byte, 8+len(msg.Block))
		binary.BigEndian.PutUint32(payload[0:4], msg.Index)
		binary.BigEndian.PutUint32(payload[4:8], msg.Begin)
		copy(payload[8:], msg.Block)
		return frame(IDPiece, payload)
	case Cancel:
		return frame(IDCancel, encodeIndexBeginLength(msg.Index, msg.Begin, msg.Length))
	case Port:
		payload := make([]byte, 2)
		binary.BigEndian.PutUint16(payload, msg.Port)
		return frame(IDPort, payload)
	default:
		panic("wire: unencodable message type")
	}
}

func encodeIndexBeginLength(index, begin, length uint32) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return payload
}

func frame(id ID, payload []byte) []byte {
	length := uint32(len(payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(id)
	copy(buf[5:], payload)
	return buf
}

// ReadMessage reads one complete frame from r, looping until the declared
// length is fully read or the connection fails. A length of 0 decodes to
// KeepAlive.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, newProtocolError("reading length prefix: %s", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return KeepAlive{}, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, newProtocolError("reading %d-byte body: %s", length, err)
	}

	id := ID(body[0])
	payload := body[1:]
	return decodeMessage(id, payload)
}

func decodeMessage(id ID, payload []byte) (Message, error) {
	switch id {
	case IDChoke:
		if len(payload) != 0 {
			return nil, newProtocolError("choke: expected empty payload, got %d bytes", len(payload))
		}
		return Choke{}, nil
	case IDUnchoke:
		if len(payload) != 0 {
			return nil, newProtocolError("unchoke: expected empty payload, got %d bytes", len(payload))
		}
		return Unchoke{}, nil
	case IDInterested:
		if len(payload) != 0 {
			return nil, newProtocolError("interested: expected empty payload, got %d bytes", len(payload))
		}
		return Interested{}, nil
	case IDNotInterested:
		if len(payload) != 0 {
			return nil, newProtocolError("not-interested: expected empty payload, got %d bytes", len(payload))
		}
		return NotInterested{}, nil
	case IDHave:
		if len(payload) != 4 {
			return nil, newProtocolError("have: expected 4-byte payload, got %d bytes", len(payload))
		}
		return Have{Index: binary.BigEndian.Uint32(payload)}, nil
	case IDBitField:
		bits := make(Bitfield, len(payload))
		copy(bits, payload)
		return BitFieldMsg{Bits: bits}, nil
	case IDRequest:
		if len(payload) != 12 {
			return nil, newProtocolError("request: expected 12-byte payload, got %d bytes", len(payload))
		}
		index, begin, length := decodeIndexBeginLength(payload)
		return Request{Index: index, Begin: begin, Length: length}, nil
	case IDPiece:
		if len(payload) < 8 {
			return nil, newProtocolError("piece: payload too short (%d bytes)", len(payload))
		}
		block := make([]byte, len(payload)-8)
		copy(block, payload[8:])
		return Piece{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: block,
		}, nil
	case IDCancel:
		if len(payload) != 12 {
			return nil, newProtocolError("cancel: expected 12-byte payload, got %d bytes", len(payload))
		}
		index, begin, length := decodeIndexBeginLength(payload)
		return Cancel{Index: index, Begin: begin, Length: length}, nil
	case IDPort:
		switch len(payload) {
		case 2:
			return Port{Port: binary.BigEndian.Uint16(payload)}, nil
		case 4:
			return Port{Port: uint16(binary.BigEndian.Uint32(payload))}, nil
		default:
			return nil, newProtocolError("port: expected 2 or 4-byte payload, got %d bytes", len(payload))
		}
	default:
		return nil, newProtocolError("unknown message id %d", id)
	}
}

func decodeIndexBeginLength(payload []byte) (index, begin, length uint32) {
	index = binary.BigEndian.Uint32(payload[0:4])
	begin = binary.BigEndian.Uint32(payload[4:8])
	length = binary.BigEndian.Uint32(payload[8:12])
	return
}
