package bencode

import (
	"bytes"
	"strings"
	"testing"

	refbencode "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDict(t *testing.T) {
	v, err := Decode(strings.NewReader("d3:cow3:moo4:spam4:eggse"))
	require.NoError(t, err)
	require.Equal(t, KindDict, v.Kind)

	cow, ok := v.Dict.Get("cow")
	require.True(t, ok)
	assert.Equal(t, "moo", string(cow.Str))

	spam, ok := v.Dict.Get("spam")
	require.True(t, ok)
	assert.Equal(t, "eggs", string(spam.Str))

	encoded, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, "d3:cow3:moo4:spam4:eggse", string(encoded))
}

func TestDecodeIntegerEdgeCases(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "i-42e", want: -42},
		{in: "i0e", want: 0},
		{in: "i-0e", wantErr: true},
		{in: "i03e", wantErr: true},
		{in: "i12345678901234e", want: 12345678901234},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			v, err := Decode(strings.NewReader(c.in))
			if c.wantErr {
				require.Error(t, err)
				assert.True(t, IsDecodeError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, v.Int)
		})
	}
}

func TestDecodeStrings(t *testing.T) {
	v, err := Decode(strings.NewReader("4:spam"))
	require.NoError(t, err)
	assert.Equal(t, "spam", string(v.Str))
}

func TestDecodeList(t *testing.T) {
	v, err := Decode(strings.NewReader("l4:spam4:eggse"))
	require.NoError(t, err)
	require.Len(t, v.List, 2)
	assert.Equal(t, "spam", string(v.List[0].Str))
	assert.Equal(t, "eggs", string(v.List[1].Str))
}

func TestDecodeDuplicateKeyFails(t *testing.T) {
	_, err := Decode(strings.NewReader("d3:cow3:moo3:cow3:mooe"))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",           // EOF before any tag
		"d",          // EOF mid dict
		"5:ab",       // length exceeds remaining input
		"x",          // unknown tag
		"ie",         // malformed integer (empty)
		"d3:keye",    // value missing after key
		"di5ee",      // dict key not a string
		"l",          // EOF mid list
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			_, err := Decode(strings.NewReader(c))
			require.Error(t, err)
		})
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	d := NewDict()
	d.Set("zebra", Str("z"))
	d.Set("apple", Str("a"))
	d.Set("mango", Str("m"))
	got, err := Encode(DictValue(d))
	require.NoError(t, err)
	assert.Equal(t, "d5:apple1:a5:mango1:m5:zebra1:ze", string(got))
}

func TestRoundTripPreservesSemantics(t *testing.T) {
	original := "d4:infod6:lengthi350e4:name8:test.iso12:piece lengthi65536e6:pieces0:e8:announce35:http://tracker.example.com/announcee"
	v, err := Decode(strings.NewReader(original))
	require.NoError(t, err)

	reencoded, err := Encode(v)
	require.NoError(t, err)

	decodedAgain, err := Decode(bytes.NewReader(reencoded))
	require.NoError(t, err)

	reencodedAgain, err := Encode(decodedAgain)
	require.NoError(t, err)

	assert.Equal(t, reencoded, reencodedAgain, "encode(decode(encode(v))) must equal encode(v)")
}

// TestCrossCheckAgainstReferenceCodec decodes the same bytes with both our
// hand-rolled codec and github.com/jackpal/bencode-go, and confirms the two
// land on the same canonical bytes. This is the one place the reference
// library is used in this module: as an independent oracle for the codec's
// own test suite, never as the production implementation (the spec calls
// for owning the codec, not delegating it).
func TestCrossCheckAgainstReferenceCodec(t *testing.T) {
	raw := "d6:lengthi12e4:name5:hello12:piece lengthi16384e6:pieces20:00000000000000000000e"

	ours, err := Decode(strings.NewReader(raw))
	require.NoError(t, err)
	ourEncoded, err := Encode(ours)
	require.NoError(t, err)

	var refDecoded interface{}
	err = refbencode.Unmarshal(strings.NewReader(raw), &refDecoded)
	require.NoError(t, err)

	var refBuf bytes.Buffer
	err = refbencode.Marshal(&refBuf, refDecoded)
	require.NoError(t, err)

	assert.Equal(t, string(ourEncoded), refBuf.String())
}
