package peer

import "github.com/pkg/errors"

// SessionError covers every reason a peer session terminates: a dial
// failure, a handshake mismatch, or a wire-level protocol error
// surfaced from the read loop.
type SessionError struct {
	msg string
}

func (e *SessionError) Error() string { return "peer: " + e.msg }

func newError(format string, args ...interface{}) error {
	return errors.WithStack(&SessionError{msg: errors.Errorf(format, args...).Error()})
}

// IsSessionError reports whether err is (or wraps) a SessionError.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}
