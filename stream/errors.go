package stream

import (
	"errors"
	"fmt"
)

// MissingDataError reports that a read touched bytes that are not yet
// available locally. It is a suspension signal: the caller is expected to
// request [Begin, End) and retry the operation.
type MissingDataError struct {
	Begin int64
	End   int64
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing data [%d, %d)", e.Begin, e.End)
}

// AsMissingData reports whether err is (or wraps) a missing-data fault.
func AsMissingData(err error) (*MissingDataError, bool) {
	if err == nil {
		return nil, false
	}
	var md *MissingDataError
	if errors.As(err, &md) {
		return md, true
	}
	return nil, false
}

// IsMissingData is a shorthand for AsMissingData when the range is not needed.
func IsMissingData(err error) bool {
	_, ok := AsMissingData(err)
	return ok
}
