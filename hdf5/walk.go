package hdf5

import (
	"errors"
	"path"
)

// WalkFunc is called for each object during traversal.
// path is the full path to the object.
// obj is either *Group or *Dataset, and is closed once fn returns.
// err is any error encountered opening the object.
// Return nil to continue walking, SkipGroup to skip the children of a
// group, ErrStopWalk to stop without an error, or any other error to stop.
type WalkFunc func(path string, obj any, err error) error

// SkipGroup can be returned from a WalkFunc called on a group to skip its
// members.
var SkipGroup = errors.New("skip this group")

// ErrStopWalk can be returned from a callback to stop walking without an error.
var ErrStopWalk = errors.New("walk stopped")

// IsStopWalk returns true if the error is ErrStopWalk.
func IsStopWalk(err error) bool { return errors.Is(err, ErrStopWalk) }

// Walk traverses all objects (groups and datasets) in the hierarchy starting from g.
// The callback is called for each group and dataset, including the starting group,
// visiting members in name order.
//
// Example:
//
//	hdf5.Walk(f.Group, func(path string, obj any, err error) error {
//	    if err != nil {
//	        return err // or skip: return nil
//	    }
//	    switch o := obj.(type) {
//	    case *hdf5.Group:
//	        fmt.Println("Group:", path)
//	    case *hdf5.Dataset:
//	        fmt.Println("Dataset:", path, "shape:", o.Shape())
//	    }
//	    return nil
//	})
func Walk(g *Group, fn WalkFunc) error {
	err := walkGroup(g, fn)
	if IsStopWalk(err) || err == SkipGroup {
		return nil
	}
	return err
}

// Walk is shorthand for Walk(g, fn).
func (g *Group) Walk(fn WalkFunc) error { return Walk(g, fn) }

func walkGroup(g *Group, fn WalkFunc) error {
	if err := fn(g.Path(), g, nil); err != nil {
		return err
	}
	members, err := g.Members()
	if err != nil {
		return err
	}
	for _, name := range members {
		childPath := path.Join(g.Path(), name)
		kind, err := g.Kind(name)
		if err != nil {
			if err := fn(childPath, nil, err); err != nil {
				return err
			}
			continue
		}
		if kind == KindGroup {
			child, err := g.OpenGroup(name)
			if err != nil {
				if err := fn(childPath, nil, err); err != nil {
					return err
				}
				continue
			}
			err = walkGroup(child, fn)
			child.Close()
			if err != nil && err != SkipGroup {
				return err
			}
			continue
		}
		ds, err := g.OpenDataset(name)
		if err != nil {
			err = fn(childPath, nil, err)
		} else {
			err = fn(childPath, ds, nil)
			ds.Close()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AttrInfo contains information about an attribute during walking.
type AttrInfo struct {
	// Path is the full attribute path (e.g., "/group/dataset@attr")
	Path string

	// ObjectPath is the path to the object containing this attribute
	ObjectPath string

	// ObjectKind is KindGroup or KindDataset
	ObjectKind Kind

	// Name is the attribute name
	Name string

	// Attr provides access to the full attribute for detailed reading
	Attr *Attribute

	// Value contains the auto-read attribute value (nil on read error)
	Value any

	// Err contains any error from reading the attribute value
	Err error
}

// WalkAttrsFunc is the callback function type for WalkAttrs.
// Return nil to continue walking, or an error to stop.
type WalkAttrsFunc func(info AttrInfo) error

// WalkAttrs recursively walks all attributes in the file.
// The callback is called for each attribute on groups and datasets.
//
// Example:
//
//	f.WalkAttrs(func(info hdf5.AttrInfo) error {
//	    fmt.Printf("%s = %v\n", info.Path, info.Value)
//	    return nil
//	})
func (f *File) WalkAttrs(fn WalkAttrsFunc) error {
	err := Walk(f.Group, func(p string, obj any, err error) error {
		if err != nil {
			// Skip objects we can't open
			return nil
		}
		switch o := obj.(type) {
		case *Group:
			return attrsOf(&o.Node, p, KindGroup, fn)
		case *Dataset:
			return attrsOf(&o.Node, p, KindDataset, fn)
		}
		return nil
	})
	if IsStopWalk(err) {
		return nil
	}
	return err
}

func attrsOf(n *Node, p string, kind Kind, fn WalkAttrsFunc) error {
	names, err := n.Attrs()
	if err != nil {
		return err
	}
	for _, name := range names {
		info := AttrInfo{
			Path:       JoinAttrPath(p, name),
			ObjectPath: p,
			ObjectKind: kind,
			Name:       name,
		}
		info.Attr, info.Err = n.Attr(name)
		if info.Err == nil {
			info.Value, info.Err = info.Attr.Value()
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}
