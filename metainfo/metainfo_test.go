package metainfo

import (
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSingleFile(t *testing.T) {
	raw := "d8:announce35:http://tracker.example.com/announce4:infod6:lengthi12e4:name5:hello12:piece lengthi16384e6:pieces20:00000000000000000000ee"
	tf, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "http://tracker.example.com/announce", tf.Announce)
	assert.Equal(t, "hello", tf.Info.Name)
	assert.Equal(t, int64(16384), tf.Info.PieceLength)
	assert.Equal(t, int64(12), tf.Info.Length)
	require.Len(t, tf.Info.PieceHashes, 1)
	assert.False(t, tf.Info.IsMultiFile())
}

func TestInfoHashMatchesExactBytes(t *testing.T) {
	// §8 scenario 3: the info-hash is SHA-1 of the exact info dict bytes.
	infoBytes := "d6:lengthi12e4:name5:hello12:piece lengthi16384e6:pieces20:00000000000000000000e"
	want := sha1.Sum([]byte(infoBytes))

	raw := "d8:announce4:test4:info" + infoBytes + "e"
	tf, err := Load(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, want, tf.InfoHash)
}

func TestInfoHashStableUnderKeyReordering(t *testing.T) {
	infoA := "d6:lengthi12e4:name5:hello12:piece lengthi16384e6:pieces20:00000000000000000000e"
	infoB := "d4:name5:hello6:lengthi12e12:piece lengthi16384e6:pieces20:00000000000000000000e"

	tfA, err := Load(strings.NewReader("d8:announce4:test4:info" + infoA + "e"))
	require.NoError(t, err)
	tfB, err := Load(strings.NewReader("d8:announce4:test4:info" + infoB + "e"))
	require.NoError(t, err)

	assert.Equal(t, tfA.InfoHash, tfB.InfoHash, "key order must not affect the info-hash")
}

func TestInfoHashDiffersOnModification(t *testing.T) {
	infoA := "d6:lengthi12e4:name5:hello12:piece lengthi16384e6:pieces20:00000000000000000000e"
	infoB := "d6:lengthi12e4:name5:howdy12:piece lengthi16384e6:pieces20:00000000000000000000e"

	tfA, err := Load(strings.NewReader("d8:announce4:test4:info" + infoA + "e"))
	require.NoError(t, err)
	tfB, err := Load(strings.NewReader("d8:announce4:test4:info" + infoB + "e"))
	require.NoError(t, err)

	assert.NotEqual(t, tfA.InfoHash, tfB.InfoHash)
}

func TestLoadMultiFile(t *testing.T) {
	raw := "d8:announce4:test4:infod4:filesld6:lengthi10e4:pathl1:a1:bee" +
		"d6:lengthi5e4:pathl1:ceee4:name4:root12:piece lengthi8e6:pieces40:0000000000000000000000000000000000000000ee"
	tf, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	require.True(t, tf.Info.IsMultiFile())
	require.Len(t, tf.Info.Files, 2)
	assert.Equal(t, "a/b", tf.Info.Files[0].Path)
	assert.Equal(t, int64(10), tf.Info.Files[0].Length)
	assert.Equal(t, "c", tf.Info.Files[1].Path)
	assert.Equal(t, int64(5), tf.Info.Files[1].Length)
	assert.Equal(t, int64(15), tf.Info.Length)
}

func TestLoadRejectsNonDict(t *testing.T) {
	_, err := Load(strings.NewReader("4:spam"))
	require.Error(t, err)
	assert.True(t, IsBadTorrentFile(err))
}

func TestLoadRejectsMissingAnnounce(t *testing.T) {
	raw := "d4:infod6:lengthi0e4:name1:x12:piece lengthi1e6:pieces0:ee"
	_, err := Load(strings.NewReader(raw))
	require.Error(t, err)
}

func TestLoadRejectsPiecesNotMultipleOf20(t *testing.T) {
	raw := "d8:announce4:test4:infod6:lengthi12e4:name5:hello12:piece lengthi16384e6:pieces5:abcdeee"
	_, err := Load(strings.NewReader(raw))
	require.Error(t, err)
}

func TestLoadFlattensAnnounceListFirstTier(t *testing.T) {
	raw := "d8:announce4:main13:announce-listll7:primaryee4:infod6:lengthi0e4:name1:x12:piece lengthi1e6:pieces0:ee"
	tf, err := Load(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, tf.AnnounceList, 1)
	assert.Equal(t, "primary", tf.AnnounceList[0])
}
