package wire

import (
	"bytes"
	"io"
)

const protocolString = "BitTorrent protocol"

// Handshake is the fixed 68-byte frame exchanged before any length-prefixed
// message: one byte giving the protocol string's length, the protocol
// string itself, 8 reserved zero bytes, the 20-byte info-hash and the
// 20-byte peer-id. It is neither length-prefixed nor id-tagged; the first
// byte (conventionally 19) disambiguates it from a normal frame.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a Handshake for the standard BitTorrent protocol
// string.
func NewHandshake(infoHash, peerID [20]byte) Handshake {
	return Handshake{InfoHash: infoHash, PeerID: peerID}
}

// Encode serializes the handshake to its 68-byte wire form.
func (h Handshake) Encode() []byte {
	buf := make([]byte, 49+len(protocolString))
	cursor := 0
	buf[cursor] = byte(len(protocolString))
	cursor++
	cursor += copy(buf[cursor:], protocolString)
	cursor += 8 // reserved, already zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and validates a handshake frame from r. It fails
// with a ProtocolError if the protocol string does not match.
func ReadHandshake(r io.Reader) (Handshake, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Handshake{}, newProtocolError("handshake: reading pstrlen: %s", err)
	}
	pstrlen := int(lenBuf[0])

	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Handshake{}, newProtocolError("handshake: reading body: %s", err)
	}

	pstr := rest[:pstrlen]
	if !bytes.Equal(pstr, []byte(protocolString)) {
		return Handshake{}, newProtocolError("handshake: unexpected protocol string %q", pstr)
	}

	var h Handshake
	cursor := pstrlen + 8
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])
	return h, nil
}
