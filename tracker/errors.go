package tracker

import "github.com/pkg/errors"

// BadTrackerResponse covers every tracker-side failure: a non-2xx HTTP
// status, a non-bencoded body, missing required fields, a peers string
// whose length isn't a multiple of 6, or an explicit "failure reason".
type BadTrackerResponse struct {
	msg string
}

func (e *BadTrackerResponse) Error() string { return "tracker: " + e.msg }

func newError(format string, args ...interface{}) error {
	return errors.WithStack(&BadTrackerResponse{msg: errors.Errorf(format, args...).Error()})
}

// IsBadTrackerResponse reports whether err is (or wraps) a
// BadTrackerResponse.
func IsBadTrackerResponse(err error) bool {
	var bt *BadTrackerResponse
	return errors.As(err, &bt)
}
