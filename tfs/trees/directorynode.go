package trees

import (
	"fmt"
	"time"
)

// Directory is the container variant of Node. It owns its children
// exclusively and keeps them in insertion order.
type Directory struct {
	nodeBase
	children []Node
	clock    Clock
}

// NewDirectory creates a detached, empty directory.
func NewDirectory(name string, opts ...NodeOption) *Directory {
	o := applyNodeOptions(opts)
	return &Directory{
		nodeBase: nodeBase{
			name:       name,
			createdAt:  o.createdAt,
			modifiedAt: o.modifiedAt,
		},
		clock: o.clock,
	}
}

// AssembleDirectory builds a directory around children that were
// constructed elsewhere, keeping the given timestamps as they are. The
// children are attached in order; the same ownership rules as AddChild
// apply.
func AssembleDirectory(name string, createdAt, modifiedAt time.Time, children []Node, opts ...NodeOption) (*Directory, error) {
	opts = append(opts, WithTimes(createdAt, modifiedAt))
	d := NewDirectory(name, opts...)
	if len(children) > 0 {
		d.children = make([]Node, 0, len(children))
	}
	for i, child := range children {
		if err := d.attach(child); err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
	}
	return d, nil
}

func (d *Directory) Kind() Kind { return KindDirectory }

// Size is the fixed DirectorySize.
func (d *Directory) Size() int64 { return DirectorySize }

// Len reports the number of children.
func (d *Directory) Len() int { return len(d.children) }

// Children returns the children in insertion order. The slice is a copy;
// the nodes are not.
func (d *Directory) Children() []Node {
	out := make([]Node, len(d.children))
	copy(out, d.children)
	return out
}

// FindChild returns the first child named name, scanning in insertion
// order.
func (d *Directory) FindChild(name string) (Node, bool) {
	for _, child := range d.children {
		if child.Name() == name {
			return child, true
		}
	}
	return nil, false
}

// AddChild takes ownership of child, appends it and moves the
// modification time forward. Directories reachable from a Tree must be
// mutated through Tree.Update.
func (d *Directory) AddChild(child Node) error {
	if err := d.attach(child); err != nil {
		return err
	}
	now := truncate(d.clock.Now())
	if now.After(d.modifiedAt) {
		d.modifiedAt = now
	}
	return nil
}

func (d *Directory) attach(child Node) error {
	if child == nil {
		return ErrNilNode
	}
	base := baseOf(child)
	if base == nil {
		return ErrNilNode
	}
	if base.attached {
		return fmt.Errorf("%w: %q", ErrAlreadyAttached, child.Name())
	}
	if dir, ok := child.(*Directory); ok && contains(dir, d) {
		return fmt.Errorf("%w: %q", ErrCycle, child.Name())
	}
	base.attached = true
	d.children = append(d.children, child)
	return nil
}

// FindChild is FindChild on n when n is a directory. Files have no
// children, so the lookup simply misses.
func FindChild(n Node, name string) (Node, bool) {
	switch v := n.(type) {
	case *Directory:
		if v == nil {
			return nil, false
		}
		return v.FindChild(name)
	case *File:
		return nil, false
	default:
		return nil, false
	}
}

func baseOf(n Node) *nodeBase {
	switch v := n.(type) {
	case *File:
		if v == nil {
			return nil
		}
		return &v.nodeBase
	case *Directory:
		if v == nil {
			return nil
		}
		return &v.nodeBase
	default:
		return nil
	}
}

// contains reports whether target is dir or lies anywhere beneath it.
func contains(dir *Directory, target *Directory) bool {
	if dir == target {
		return true
	}
	for _, child := range dir.children {
		if sub, ok := child.(*Directory); ok && contains(sub, target) {
			return true
		}
	}
	return false
}
