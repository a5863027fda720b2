// Package arf reads and writes ARF files: HDF5 files whose top-level
// groups are entries, each stamped with a timestamp and a uuid, holding
// datasets tagged with units and a data type code. A root-level packet
// table keeps a log of messages.
package arf

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/hdf5"
)

// Version strings written to new files.
const (
	LibraryName    = "go"
	LibraryVersion = "2.0.0"
	SpecVersion    = "2.0"
)

var (
	ErrUnknownVersion    = errors.New("arf: unable to determine file version")
	ErrDeprecatedVersion = errors.New("arf: file version is older than 1.1")
	ErrFutureVersion     = errors.New("arf: file version is 3.0 or newer")
	ErrBadLog            = fmt.Errorf("arf: /log is not a log table: %w", hdf5.ErrTypeMismatch)
)

// File is an open ARF file.
type File struct {
	*hdf5.File
}

// Open opens an ARF file in one of the modes of hdf5.OpenFile. A writable
// file without an arf_version attribute, which includes every new file,
// gets the library and version attributes.
func Open(path, mode string, opts ...hdf5.FileOption) (*File, error) {
	hf, err := hdf5.OpenFile(path, mode, opts...)
	if err != nil {
		return nil, err
	}
	f := &File{File: hf}
	if hf.Writable() && !hf.HasAttr("arf_version") {
		err := hf.AttrWriter().
			Set("arf_library", LibraryName).
			Set("arf_library_version", LibraryVersion).
			Set("arf_version", SpecVersion).
			Err()
		if err != nil {
			hf.Close()
			return nil, err
		}
		log.V(1).Infof("stamped %s as arf %s", path, SpecVersion)
	}
	return f, nil
}

// CheckVersion reads the file's arf_version attribute, falling back to
// arf_library_version, and checks that this library can handle it. The
// version string is returned with ErrDeprecatedVersion and ErrFutureVersion
// so callers can choose to carry on.
func CheckVersion(f *File) (string, error) {
	ver, err := f.AttrString("arf_version")
	if err != nil {
		ver, err = f.AttrString("arf_library_version")
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s may not have been created by an arf library", ErrUnknownVersion, f.Filename())
	}
	v, err := parseVersion(ver)
	if err != nil {
		return ver, fmt.Errorf("%w: %v", ErrUnknownVersion, err)
	}
	switch {
	case compareVersions(v, []int{1, 1}) < 0:
		return ver, fmt.Errorf("%w: %s", ErrDeprecatedVersion, ver)
	case compareVersions(v, []int{3, 0}) >= 0:
		return ver, fmt.Errorf("%w: %s", ErrFutureVersion, ver)
	}
	return ver, nil
}

// parseVersion splits a dotted version like "2.0" or "2.2.0-SNAPSHOT" into
// its numeric components; a suffix after the numbers is ignored.
func parseVersion(s string) ([]int, error) {
	num, _, _ := strings.Cut(strings.TrimSpace(s), "-")
	parts := strings.Split(num, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad version %q", s)
		}
		out[i] = n
	}
	return out, nil
}

// compareVersions compares component by component; missing components
// count as zero.
func compareVersions(a, b []int) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Entries returns the names of the file's entries in creation order.
func (f *File) Entries() ([]string, error) {
	names, err := f.MembersByCreation()
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, name := range names {
		if k, err := f.Kind(name); err == nil && k == hdf5.KindGroup {
			out = append(out, name)
		}
	}
	return out, nil
}

// KeysByCreation returns the link names of g in the order they were created.
func KeysByCreation(g *hdf5.Group) ([]string, error) {
	return g.MembersByCreation()
}

// CountChildren returns the number of children of g of the given kind.
func CountChildren(g *hdf5.Group, kind hdf5.Kind) (int, error) {
	return g.CountChildren(kind)
}

// Attributer is implemented by every hdf5 object handle.
type Attributer interface {
	HasAttr(name string) bool
	SetAttr(name string, value any) error
	DeleteAttr(name string) error
}

// SetAttributes sets several attributes on n in name order. A nil value
// deletes the attribute. Without overwrite, existing attributes are left
// alone.
func SetAttributes(n Attributer, attrs map[string]any, overwrite bool) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v := attrs[name]
		exists := n.HasAttr(name)
		switch {
		case exists && !overwrite:
		case v == nil:
			if exists {
				if err := n.DeleteAttr(name); err != nil {
					return err
				}
			}
		default:
			if err := n.SetAttr(name, v); err != nil {
				return err
			}
		}
	}
	return nil
}
