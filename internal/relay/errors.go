package relay

import (
	"errors"
	"fmt"
)

// ErrConnectivity matches every failure to reach the home host or to get a
// usable answer back from it.
var ErrConnectivity = errors.New("cannot reach home host")

// ErrMalformedResult means the session ended without a decodable result frame.
var ErrMalformedResult = errors.New("malformed result from home host")

// ConnectivityError records which step of reaching the home host failed.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnectivity) true for every ConnectivityError.
func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}
