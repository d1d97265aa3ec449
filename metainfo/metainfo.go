// Package metainfo parses a .torrent file's bencoded container into a
// typed torrent descriptor and computes its info-hash.
package metainfo

import (
	"crypto/sha1"
	"io"
	"strings"

	"github.com/gorent/core/bencode"
)

// FileEntry describes one file within a multi-file torrent: its path
// (components already joined with "/") and its length in bytes.
type FileEntry struct {
	Path   string
	Length int64
}

// Info is the parsed `info` sub-dictionary: the part of the metainfo that
// determines the info-hash and the piece layout.
type Info struct {
	Name        string
	PieceLength int64
	PieceHashes [][20]byte
	// Length is the total size in bytes for a single-file torrent, and the
	// sum of all file lengths for a multi-file torrent.
	Length int64
	// Files is nil for a single-file torrent.
	Files []FileEntry
}

// IsMultiFile reports whether this torrent describes more than one file.
func (i *Info) IsMultiFile() bool { return i.Files != nil }

// TorrentFile is the fully parsed metainfo: everything the tracker client,
// the swarm coordinator and the file writer need.
type TorrentFile struct {
	Announce     string
	AnnounceList []string
	Comment      string
	CreatedBy    string
	CreationDate int64

	InfoHash [20]byte
	Info     Info
}

// Load decodes r as a bencoded .torrent container and builds a
// TorrentFile. It fails with BadTorrentFile on any structural or type
// mismatch.
func Load(r io.Reader) (*TorrentFile, error) {
	top, err := bencode.Decode(r)
	if err != nil {
		return nil, newError("decoding top-level value: %s", err)
	}
	if top.Kind != bencode.KindDict {
		return nil, newError("top-level value is not a dictionary")
	}

	tf := &TorrentFile{}

	announce, ok := top.Dict.Get("announce")
	if !ok || announce.Kind != bencode.KindString {
		return nil, newError("missing or malformed 'announce'")
	}
	tf.Announce = string(announce.Str)

	if list, ok := top.Dict.Get("announce-list"); ok {
		tf.AnnounceList, err = flattenAnnounceList(list)
		if err != nil {
			return nil, err
		}
	}

	if comment, ok := top.Dict.Get("comment"); ok && comment.Kind == bencode.KindString {
		tf.Comment = string(comment.Str)
	}
	if createdBy, ok := top.Dict.Get("created by"); ok && createdBy.Kind == bencode.KindString {
		tf.CreatedBy = string(createdBy.Str)
	}
	if creationDate, ok := top.Dict.Get("creation date"); ok && creationDate.Kind == bencode.KindInt {
		tf.CreationDate = creationDate.Int
	}

	infoVal, ok := top.Dict.Get("info")
	if !ok || infoVal.Kind != bencode.KindDict {
		return nil, newError("missing or malformed 'info' dictionary")
	}

	info, err := parseInfo(infoVal)
	if err != nil {
		return nil, err
	}
	tf.Info = *info

	// The info-hash is SHA-1 of the canonical (sorted-key) re-encoding of
	// the info dictionary. Because Encode is canonical, re-encoding the
	// decoded value always reproduces the bytes the original author
	// intended to hash, regardless of the key order actually present on
	// disk.
	encodedInfo, err := bencode.Encode(infoVal)
	if err != nil {
		return nil, newError("re-encoding info dictionary: %s", err)
	}
	tf.InfoHash = sha1.Sum(encodedInfo)

	if err := validateLength(tf); err != nil {
		return nil, err
	}

	return tf, nil
}

func flattenAnnounceList(list bencode.Value) ([]string, error) {
	if list.Kind != bencode.KindList {
		return nil, newError("'announce-list' is not a list")
	}
	var out []string
	for _, tier := range list.List {
		if tier.Kind != bencode.KindList || len(tier.List) == 0 {
			continue
		}
		// A known simplification: flatten only the first URL of each tier.
		first := tier.List[0]
		if first.Kind != bencode.KindString {
			return nil, newError("'announce-list' tier entry is not a string")
		}
		out = append(out, string(first.Str))
	}
	return out, nil
}

func parseInfo(infoVal bencode.Value) (*Info, error) {
	d := infoVal.Dict

	name, ok := d.Get("name")
	if !ok || name.Kind != bencode.KindString {
		return nil, newError("info: missing or malformed 'name'")
	}

	pieceLength, ok := d.Get("piece length")
	if !ok || pieceLength.Kind != bencode.KindInt || pieceLength.Int <= 0 {
		return nil, newError("info: missing or malformed 'piece length'")
	}

	pieces, ok := d.Get("pieces")
	if !ok || pieces.Kind != bencode.KindString {
		return nil, newError("info: missing or malformed 'pieces'")
	}
	if len(pieces.Str)%20 != 0 {
		return nil, newError("info: 'pieces' length %d is not a multiple of 20", len(pieces.Str))
	}
	hashes := make([][20]byte, len(pieces.Str)/20)
	for i := range hashes {
		copy(hashes[i][:], pieces.Str[i*20:(i+1)*20])
	}

	info := &Info{
		Name:        string(name.Str),
		PieceLength: pieceLength.Int,
		PieceHashes: hashes,
	}

	if filesVal, ok := d.Get("files"); ok {
		if filesVal.Kind != bencode.KindList {
			return nil, newError("info: 'files' is not a list")
		}
		files := make([]FileEntry, 0, len(filesVal.List))
		var total int64
		for _, fv := range filesVal.List {
			entry, err := parseFileEntry(fv)
			if err != nil {
				return nil, err
			}
			files = append(files, entry)
			total += entry.Length
		}
		info.Files = files
		info.Length = total
		return info, nil
	}

	length, ok := d.Get("length")
	if !ok || length.Kind != bencode.KindInt || length.Int < 0 {
		return nil, newError("info: missing or malformed 'length'")
	}
	info.Length = length.Int
	return info, nil
}

func parseFileEntry(v bencode.Value) (FileEntry, error) {
	if v.Kind != bencode.KindDict {
		return FileEntry{}, newError("files: entry is not a dictionary")
	}
	length, ok := v.Dict.Get("length")
	if !ok || length.Kind != bencode.KindInt || length.Int < 0 {
		return FileEntry{}, newError("files: entry missing or malformed 'length'")
	}
	pathVal, ok := v.Dict.Get("path")
	if !ok || pathVal.Kind != bencode.KindList || len(pathVal.List) == 0 {
		return FileEntry{}, newError("files: entry missing or malformed 'path'")
	}
	parts := make([]string, len(pathVal.List))
	for i, p := range pathVal.List {
		if p.Kind != bencode.KindString {
			return FileEntry{}, newError("files: path component is not a string")
		}
		parts[i] = string(p.Str)
	}
	return FileEntry{Path: strings.Join(parts, "/"), Length: length.Int}, nil
}

// validateLength enforces that the total content length is consistent
// with piece_length and the number of piece hashes: ceil(total /
// piece_length) must equal the number of pieces, with the last piece
// possibly shorter.
func validateLength(tf *TorrentFile) error {
	numPieces := len(tf.Info.PieceHashes)
	if numPieces == 0 {
		if tf.Info.Length != 0 {
			return newError("no piece hashes but total length is %d", tf.Info.Length)
		}
		return nil
	}
	expected := (tf.Info.Length + tf.Info.PieceLength - 1) / tf.Info.PieceLength
	if expected != int64(numPieces) {
		return newError(
			"piece count mismatch: %d piece hashes but length %d and piece length %d implies %d pieces",
			numPieces, tf.Info.Length, tf.Info.PieceLength, expected,
		)
	}
	return nil
}
