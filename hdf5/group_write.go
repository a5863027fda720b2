package hdf5

import (
	"fmt"
	"strings"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// checkName validates a single link name.
func checkName(name string) error {
	if name == "" || strings.Contains(name, "/") || name == "." {
		return fmt.Errorf("%w: link name %q", ErrInvalidPath, name)
	}
	return nil
}

// prepareLink checks that a link called name can be added to st. With
// replace an existing link is removed first.
func prepareLink(st *objState, name string, replace bool) error {
	if err := st.writable(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	li := st.hdr.LinkInfo()
	if li == nil {
		return fmt.Errorf("%w: adding links to an old-style group", ErrUnsupported)
	}
	if li.Dense() {
		return fmt.Errorf("%w: dense link storage", ErrUnsupported)
	}
	if st.hdr.Link(name) == nil {
		return nil
	}
	if !replace {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, joinPath(st.path, name))
	}
	return unlink(st, name)
}

// addLink records a hard link from st to child.
func addLink(st *objState, name string, child *objState) {
	li := st.hdr.LinkInfo()
	order := li.MaxCreationIndex
	li.MaxCreationIndex++
	l := message.NewHardLink(name, child.addr, order)
	if !li.Tracked() {
		l.HasOrder = false
	}
	st.hdr.Messages = append(st.hdr.Messages, l)
	st.dirty = true
	log.V(1).Infof("created %s at %d", child.path, child.addr)
}

func unlink(st *objState, name string) error {
	l := st.hdr.Link(name)
	if l == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, joinPath(st.path, name))
	}
	st.hdr.Remove(func(m message.Message) bool { return m == l })
	st.dirty = true
	if l.IsHard() {
		if child, ok := st.f.objects[l.ObjectAddress]; ok && child.parent == st {
			child.unlinked = true
			if child.refs == 0 {
				delete(st.f.objects, l.ObjectAddress)
			}
		}
	}
	log.V(1).Infof("unlinked %s", joinPath(st.path, name))
	return nil
}

// CreateGroup creates a new subgroup called name.
func (g *Group) CreateGroup(name string) (*Group, error) {
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("create group", name, err)
	}
	defer g.release()
	child, err := g.createGroup(st, name)
	if err != nil {
		return nil, wrap("create group", joinPath(g.path, name), err)
	}
	return &Group{Node: newNode(child, joinPath(g.path, name))}, nil
}

func (g *Group) createGroup(st *objState, name string) (*objState, error) {
	if err := prepareLink(st, name, false); err != nil {
		return nil, err
	}
	child, err := st.f.newObject(groupMessages(), st, name)
	if err != nil {
		return nil, err
	}
	addLink(st, name, child)
	return child, nil
}

// CreateGroups creates every missing group along p, like mkdir -p, and
// returns the last one.
func (g *Group) CreateGroups(p string) (*Group, error) {
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("create groups", p, err)
	}
	defer g.release()
	full := g.path
	if strings.HasPrefix(p, "/") {
		st, full = st.f.root, "/"
	}
	for _, name := range SplitPath(p) {
		full = joinPath(full, name)
		next, err := walkLinks(st, []string{name}, 0)
		switch {
		case err == nil:
			if !next.hdr.IsGroup() {
				return nil, wrap("create groups", full, ErrNotGroup)
			}
		case isNotFound(err):
			if next, err = g.createGroup(st, name); err != nil {
				return nil, wrap("create groups", full, err)
			}
		default:
			return nil, wrap("create groups", full, err)
		}
		st = next
	}
	return &Group{Node: newNode(st, full)}, nil
}

// Unlink removes the link called name. Objects already opened through it
// stay readable until closed, but are no longer written at flush.
func (g *Group) Unlink(name string) error {
	st, err := g.acquire()
	if err != nil {
		return wrap("unlink", name, err)
	}
	defer g.release()
	if err := st.writable(); err != nil {
		return wrap("unlink", name, err)
	}
	if err := checkName(name); err != nil {
		return wrap("unlink", name, err)
	}
	if st.hdr.LinkInfo() == nil {
		return wrap("unlink", name, fmt.Errorf("%w: removing links from an old-style group", ErrUnsupported))
	}
	return wrap("unlink", joinPath(g.path, name), unlink(st, name))
}
