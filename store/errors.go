package store

import (
	"errors"
	"fmt"
)

var (
	// ErrIO matches any IOError via errors.Is.
	ErrIO = errors.New("store: io failure")
	// ErrDecode matches any DecodeError via errors.Is.
	ErrDecode = errors.New("store: malformed collection file")
)

// IOError is a filesystem failure during a transaction. The transaction is
// aborted and the collection file keeps its previous contents.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIO) hold.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// DecodeError reports a collection file that could not be parsed or a
// record that could not be encoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("store: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
