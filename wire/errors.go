package wire

import "github.com/pkg/errors"

// ProtocolError covers every wire-level violation: an unknown message id,
// a payload length inconsistent with its id, EOF before a declared length
// of bytes arrives, or a handshake whose protocol string mismatches.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "wire: protocol error: " + e.msg }

func newProtocolError(format string, args ...interface{}) error {
	return errors.WithStack(&ProtocolError{msg: errors.Errorf(format, args...).Error()})
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
