package bencode

import "github.com/pkg/errors"

// DecodeError is returned for any malformed bencoded input: EOF mid-value,
// a missing separator, an unknown leading tag byte, a length that exceeds
// the remaining input, or a malformed integer.
type DecodeError struct {
	msg string
}

func (e *DecodeError) Error() string { return "bencode: decode: " + e.msg }

func newDecodeError(format string, args ...interface{}) error {
	return errors.WithStack(&DecodeError{msg: errors.Errorf(format, args...).Error()})
}

// EncodeError is returned when Encode is asked to serialize a value outside
// the four bencode variants (integer, string, list, dict).
type EncodeError struct {
	msg string
}

func (e *EncodeError) Error() string { return "bencode: encode: " + e.msg }

func newEncodeError(format string, args ...interface{}) error {
	return errors.WithStack(&EncodeError{msg: errors.Errorf(format, args...).Error()})
}

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsEncodeError reports whether err is (or wraps) an EncodeError.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}
