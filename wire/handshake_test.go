package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeEncodeExample(t *testing.T) {
	var peerID, infoHash [20]byte
	copy(peerID[:], "01234567890123456789")
	for i := range infoHash {
		infoHash[i] = 'a'
	}

	h := NewHandshake(infoHash, peerID)
	got := h.Encode()

	want := append([]byte{19}, []byte("BitTorrent protocol")...)
	want = append(want, make([]byte, 8)...)
	want = append(want, infoHash[:]...)
	want = append(want, peerID[:]...)

	assert.Equal(t, want, got)
	assert.Len(t, got, 68)
}

func TestHandshakeRoundTrip(t *testing.T) {
	var peerID, infoHash [20]byte
	copy(peerID[:], "mypeeridmypeeridmype")
	copy(infoHash[:], "infohashinfohashinfo")

	h := NewHandshake(infoHash, peerID)
	decoded, err := ReadHandshake(bytes.NewReader(h.Encode()))
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestHandshakeRejectsWrongProtocolString(t *testing.T) {
	bad := append([]byte{4}, []byte("xtpq")...)
	bad = append(bad, make([]byte, 48)...)
	_, err := ReadHandshake(bytes.NewReader(bad))
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}
