// Package hdf5 reads and writes HDF5 files in pure Go: groups, attributes,
// and chunked, filtered, extensible datasets, plus append-only packet
// tables built on them.
package hdf5

import (
	"errors"

	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/object"
	"github.com/robert-malhotra/go-arf/internal/superblock"
)

// Common errors. Every error returned by this package is an *Error wrapping
// one of these, so test with errors.Is.
var (
	ErrAlreadyExists   = errors.New("object already exists")
	ErrNotFound        = errors.New("object not found")
	ErrTypeMismatch    = dtype.ErrTypeMismatch
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRange           = errors.New("selection out of range")
	ErrReadOnly        = errors.New("file is read-only")
	ErrClosed          = errors.New("handle is closed")
	ErrUnsupported     = errors.New("unsupported feature")
	ErrNotHDF5         = superblock.ErrNotHDF5
	ErrNotDataset      = errors.New("object is not a dataset")
	ErrNotGroup        = errors.New("object is not a group")
	ErrInvalidPath     = errors.New("invalid path")
	ErrLinkDepth       = errors.New("maximum link depth exceeded")
)

// MaxLinkDepth is the maximum number of soft/external links that can be followed
// in a single path resolution. This prevents stack overflow from deeply nested links.
const MaxLinkDepth = 100

// Error records the operation and object path an error occurred on.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "hdf5: " + e.Op + ": " + e.Err.Error()
	}
	return "hdf5: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// unsupported lists the lower-level errors reported as ErrUnsupported.
var unsupported = []error{
	message.ErrUnsupported,
	filter.ErrUnsupported,
	dtype.ErrUnsupported,
	object.ErrUnsupportedVersion,
	superblock.ErrUnsupportedVersion,
}

// Is makes errors from the encoding layers match ErrUnsupported.
func (e *Error) Is(target error) bool {
	if target != ErrUnsupported {
		return false
	}
	for _, u := range unsupported {
		if errors.Is(e.Err, u) {
			return true
		}
	}
	return false
}

// Cause returns the innermost error in err's chain.
func Cause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Path: path, Err: err}
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
