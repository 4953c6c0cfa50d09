package domain

import (
	"errors"
	"fmt"
)

// TransportError is a network or timeout failure on an external call. The
// outcome is unknown: the call may or may not have taken effect, so callers
// must confirm by polling status before acting again.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is an explicit application-level rejection from the
// exchange (bad price, market closed, insufficient funds). Never retried
// with the same parameters.
type RejectionError struct {
	Op      string
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: exchange rejected: %s (%s)", e.Op, e.Code, e.Message)
}

// DataError is a gap in the join between the schedule feed and the exchange
// catalogue: an unresolvable venue or market. The race is skipped, never
// silently ignored.
type DataError struct {
	Op     string
	Detail string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: data error: %s", e.Op, e.Detail)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is (or wraps) a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// IsData reports whether err is (or wraps) a DataError.
func IsData(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
