package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Message{
		KeepAlive{},
		Choke{},
		Unchoke{},
		Interested{},
		NotInterested{},
		Have{Index: 7},
		BitFieldMsg{Bits: Bitfield{0b10000001}},
		Request{Index: 1, Begin: 16384, Length: 16384},
		Piece{Index: 1, Begin: 0, Block: []byte("hello world")},
		Cancel{Index: 1, Begin: 16384, Length: 16384},
		Port{Port: 6881},
	}
	for _, m := range cases {
		t.Run("", func(t *testing.T) {
			encoded := Encode(m)
			decoded, err := ReadMessage(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, m, decoded)
		})
	}
}

func TestBitFieldBitOrder(t *testing.T) {
	bf := Bitfield{0b10000001}
	assert.True(t, bf.Has(0))
	assert.True(t, bf.Has(7))
	for i := 1; i <= 6; i++ {
		assert.False(t, bf.Has(i), "bit %d should be absent", i)
	}
}

func TestBitFieldOutOfRange(t *testing.T) {
	bf := Bitfield{0xFF}
	assert.True(t, bf.Has(7))
	assert.False(t, bf.Has(8), "index >= len*8 is out of range")
	assert.False(t, bf.Has(100))
}

func TestReadMessageRejectsBadLength(t *testing.T) {
	// Have with 5-byte payload instead of the required 4.
	buf := make([]byte, 4+6)
	buf[3] = 6
	buf[4] = byte(IDHave)
	_, err := ReadMessage(bytes.NewReader(buf))
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestReadMessageRejectsUnknownID(t *testing.T) {
	buf := []byte{0, 0, 0, 1, 99}
	_, err := ReadMessage(bytes.NewReader(buf))
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestReadMessageRejectsTruncatedBody(t *testing.T) {
	buf := []byte{0, 0, 0, 5, byte(IDHave), 0, 0} // declares 5 bytes, only 3 follow
	_, err := ReadMessage(bytes.NewReader(buf))
	require.Error(t, err)
}

func TestPortAcceptsBothWidths(t *testing.T) {
	wide := []byte{0, 0, 0, 5, byte(IDPort), 0, 0, 0x1a, 0xe1}
	m, err := ReadMessage(bytes.NewReader(wide))
	require.NoError(t, err)
	assert.Equal(t, Port{Port: 6881}, m)

	narrow := Encode(Port{Port: 6881})
	assert.Len(t, narrow, 4+1+2, "Encode always emits the 2-byte form")
}

func TestCompactPeersExample(t *testing.T) {
	// raw peers "\x7f\x00\x00\x01\x1a\xe1" decodes to one peer (127.0.0.1, 6881)
	raw := []byte{0x7f, 0x00, 0x00, 0x01, 0x1a, 0xe1}
	ip := net.IP(raw[0:4])
	port := uint16(raw[4])<<8 | uint16(raw[5])
	assert.Equal(t, "127.0.0.1", ip.String())
	assert.Equal(t, uint16(6881), port)
}
