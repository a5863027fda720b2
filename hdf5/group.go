package hdf5

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/go-arf/internal/btree"
	"github.com/robert-malhotra/go-arf/internal/heap"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// Group represents an HDF5 group.
type Group struct {
	Node
}

// Kind classifies the objects a link can point at.
type Kind int

const (
	KindAny Kind = iota
	KindGroup
	KindDataset
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	}
	return "any"
}

func kindOf(st *objState) Kind {
	switch {
	case st.hdr.IsGroup():
		return KindGroup
	case st.ds != nil:
		return KindDataset
	}
	return KindAny
}

// link is one member of a group, whatever its storage.
type link struct {
	name    string
	ordered bool
	order   uint64

	hard bool
	addr uint64
	soft string
	// External links.
	file   string
	target string
}

func linkFrom(l *message.Link) link {
	out := link{name: l.Name, ordered: l.HasOrder, order: l.CreationOrder}
	switch l.LinkType {
	case message.LinkHard:
		out.hard, out.addr = true, l.ObjectAddress
	case message.LinkSoft:
		out.soft = l.SoftPath
	case message.LinkExternal:
		out.file, out.target = l.ExternalFile, l.ExternalPath
	}
	return out
}

// links returns the members of group st in storage order.
func (f *File) links(st *objState) ([]link, error) {
	if stab := st.hdr.SymbolTable(); stab != nil {
		if st.entries == nil {
			names, err := heap.ReadLocal(f.r, stab.LocalHeapAddress)
			if err != nil {
				return nil, err
			}
			entries, err := btree.ReadGroupEntries(f.r, stab.BTreeAddress, names)
			if err != nil {
				return nil, err
			}
			st.entries = append(make([]btree.GroupEntry, 0, len(entries)), entries...)
		}
		out := make([]link, len(st.entries))
		for i, e := range st.entries {
			out[i] = link{name: e.Name, hard: !e.Soft, addr: e.ObjectAddress, soft: e.SoftPath}
		}
		return out, nil
	}
	li := st.hdr.LinkInfo()
	if li == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, st.path)
	}
	if li.Dense() {
		return nil, fmt.Errorf("%w: dense link storage in %s", ErrUnsupported, st.path)
	}
	var out []link
	for _, l := range st.hdr.Links() {
		out = append(out, linkFrom(l))
	}
	return out, nil
}

func (f *File) find(st *objState, name string) (link, bool, error) {
	links, err := f.links(st)
	if err != nil {
		return link{}, false, err
	}
	for _, l := range links {
		if l.name == name {
			return l, true, nil
		}
	}
	return link{}, false, nil
}

// resolve walks p from st, following soft and external links. An
// absolute p starts at the root group.
func resolve(st *objState, p string, depth int) (*objState, error) {
	if len(p) > 0 && p[0] == '/' {
		st = st.f.root
	}
	return walkLinks(st, SplitPath(p), depth)
}

func walkLinks(st *objState, parts []string, depth int) (*objState, error) {
	for i, name := range parts {
		if name == "." {
			continue
		}
		f := st.f
		if !st.hdr.IsGroup() {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, st.path)
		}
		l, ok, err := f.find(st, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, joinPath(st.path, name))
		}
		if l.hard {
			if st, err = f.load(l.addr, st, l.name); err != nil {
				return nil, err
			}
			continue
		}
		if depth >= MaxLinkDepth {
			return nil, fmt.Errorf("%w: at %s", ErrLinkDepth, joinPath(st.path, name))
		}
		if l.soft != "" {
			if st, err = resolve(st, l.soft, depth+1); err != nil {
				return nil, err
			}
			continue
		}
		// The rest of the path is resolved inside the external file.
		ext, err := f.openExternal(l.file)
		if err != nil {
			return nil, fmt.Errorf("external link %s: %w", name, err)
		}
		ext.mu.Lock()
		defer ext.mu.Unlock()
		rest := append(SplitPath(l.target), parts[i+1:]...)
		return walkLinks(ext.root, rest, depth+1)
	}
	return st, nil
}

// follow returns the object a single link of group parent points at.
func follow(parent *objState, l link) (*objState, error) {
	if l.hard {
		return parent.f.load(l.addr, parent, l.name)
	}
	return walkLinks(parent, []string{l.name}, 0)
}

// lookup resolves p relative to the group and returns the target state
// and its path as seen from this handle.
func (g *Group) lookup(st *objState, p string) (*objState, string, error) {
	target, err := resolve(st, p, 0)
	if err != nil {
		return nil, "", err
	}
	if len(p) > 0 && p[0] == '/' {
		return target, CleanPath(p), nil
	}
	return target, joinPath(g.path, p), nil
}

// OpenGroup opens a subgroup by relative or absolute path.
func (g *Group) OpenGroup(p string) (*Group, error) {
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("open group", p, err)
	}
	defer g.release()
	target, full, err := g.lookup(st, p)
	if err != nil {
		return nil, wrap("open group", p, err)
	}
	if !target.hdr.IsGroup() {
		return nil, wrap("open group", full, ErrNotGroup)
	}
	return &Group{Node: newNode(target, full)}, nil
}

// Reopen returns a new handle on the same group.
func (g *Group) Reopen() (*Group, error) {
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("reopen", g.path, err)
	}
	defer g.release()
	return &Group{Node: newNode(st, g.path)}, nil
}

// Contains reports whether p names an object. Dangling links and paths
// through non-groups report false.
func (g *Group) Contains(p string) bool {
	st, err := g.acquire()
	if err != nil {
		return false
	}
	defer g.release()
	_, _, err = g.lookup(st, p)
	return err == nil
}

// Kind returns whether p names a group or a dataset.
func (g *Group) Kind(p string) (Kind, error) {
	st, err := g.acquire()
	if err != nil {
		return KindAny, wrap("kind", p, err)
	}
	defer g.release()
	target, _, err := g.lookup(st, p)
	if err != nil {
		return KindAny, wrap("kind", p, err)
	}
	return kindOf(target), nil
}

// Members returns the names of the group's links in name order.
func (g *Group) Members() ([]string, error) {
	links, err := g.memberLinks()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.name
	}
	sort.Strings(names)
	return names, nil
}

// MembersByCreation returns the names of the group's links in creation
// order. Links without a recorded order sort by name after those with one.
func (g *Group) MembersByCreation() ([]string, error) {
	links, err := g.memberLinks()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.ordered != b.ordered {
			return a.ordered
		}
		if a.ordered && a.order != b.order {
			return a.order < b.order
		}
		return a.name < b.name
	})
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.name
	}
	return names, nil
}

func (g *Group) memberLinks() ([]link, error) {
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("members", g.path, err)
	}
	defer g.release()
	links, err := st.f.links(st)
	if err != nil {
		return nil, wrap("members", g.path, err)
	}
	return links, nil
}

// NumChildren returns the number of links in the group.
func (g *Group) NumChildren() (int, error) {
	links, err := g.memberLinks()
	return len(links), err
}

// CountChildren returns the number of members of the given kind. Members
// that cannot be opened are not counted.
func (g *Group) CountChildren(kind Kind) (int, error) {
	st, err := g.acquire()
	if err != nil {
		return 0, wrap("count", g.path, err)
	}
	defer g.release()
	links, err := st.f.links(st)
	if err != nil {
		return 0, wrap("count", g.path, err)
	}
	if kind == KindAny {
		return len(links), nil
	}
	n := 0
	for _, l := range links {
		target, err := follow(st, l)
		if err == nil && kindOf(target) == kind {
			n++
		}
	}
	return n, nil
}
