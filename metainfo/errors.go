package metainfo

import "github.com/pkg/errors"

// BadTorrentFile is returned for any structural or type mismatch found
// while interpreting a decoded bencode value as a torrent descriptor.
type BadTorrentFile struct {
	msg string
}

func (e *BadTorrentFile) Error() string { return "metainfo: " + e.msg }

func newError(format string, args ...interface{}) error {
	return errors.WithStack(&BadTorrentFile{msg: errors.Errorf(format, args...).Error()})
}

// IsBadTorrentFile reports whether err is (or wraps) a BadTorrentFile.
func IsBadTorrentFile(err error) bool {
	var bt *BadTorrentFile
	return errors.As(err, &bt)
}
