package trees

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tree is the handle through which a root directory is shared between
// concurrent readers and a mutator. A single reader-writer lock covers
// the whole tree: View holds it shared, Update holds it exclusively.
type Tree struct {
	id         uuid.UUID
	mu         sync.RWMutex
	root       *Directory
	generation uint64
	updatedAt  time.Time
	clock      Clock
	index      *PathIndex
	useIndex   bool
	logger     zerolog.Logger
}

// TreeOption allows for customization of Tree
type TreeOption func(*Tree)

// WithRoot installs an existing detached directory as the root. The tree
// owns it from then on.
func WithRoot(root *Directory) TreeOption {
	return func(t *Tree) {
		if root != nil {
			t.root = root
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) TreeOption {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithTreeClock sets the clock used for the default root and for
// bookkeeping timestamps.
func WithTreeClock(c Clock) TreeOption {
	return func(t *Tree) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithPathIndex enables the patricia path index for Tx.Resolve.
func WithPathIndex(enabled bool) TreeOption {
	return func(t *Tree) {
		t.useIndex = enabled
	}
}

// NewTree creates a tree whose root is an empty, unnamed directory
// unless WithRoot supplies one.
func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{
		id:     uuid.New(),
		clock:  RealClock{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.root == nil {
		t.root = NewDirectory("", WithClock(t.clock))
	}
	t.root.attached = true
	t.updatedAt = t.clock.Now()
	t.logger = t.logger.With().Str("tree_id", t.id.String()).Logger()

	if t.useIndex {
		t.index = NewPathIndex(t.logger)
	}

	return t
}

// ID identifies this tree instance in logs.
func (t *Tree) ID() uuid.UUID {
	return t.id
}

// Clock returns the clock the tree was built with.
func (t *Tree) Clock() Clock {
	return t.clock
}

// Logger returns the tree's logger, already tagged with its id.
func (t *Tree) Logger() zerolog.Logger {
	return t.logger
}

// Generation counts Update calls that returned without error.
func (t *Tree) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// IndexStats reports the path index counters. ok is false when the
// tree was built without an index.
func (t *Tree) IndexStats() (stats PathIndexStats, ok bool) {
	if t.index == nil {
		return PathIndexStats{}, false
	}
	return t.index.GetStats(), true
}

// ValidateIndex brings the path index up to date and checks every entry
// against the linear resolver. A tree without an index has nothing to
// check.
func (t *Tree) ValidateIndex() []error {
	if t.index == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.index.ensure(t.root, t.generation)
	return t.index.Validate(t.root)
}

// View runs fn with shared access. fn must not retain tx or any node
// beyond its return.
func (t *Tree) View(fn func(tx *Tx) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tx := &Tx{tree: t}
	defer tx.close()
	return fn(tx)
}

// Update runs fn with exclusive access. fn may mutate directories it
// reached through tx directly; a successful Update counts as one
// mutation, and the path index is dropped after every Update.
func (t *Tree) Update(fn func(tx *Tx) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := &Tx{tree: t, writable: true}
	err := fn(tx)
	tx.close()

	if err == nil {
		t.touch()
	}
	if t.index != nil {
		// Changes may precede an error, so invalidate regardless.
		t.index.invalidate()
	}
	return err
}

// AddChild resolves parentPath and attaches child to the directory there.
func (t *Tree) AddChild(parentPath string, child Node) error {
	return t.Update(func(tx *Tx) error {
		node, ok := tx.Resolve(parentPath)
		if !ok {
			return fmt.Errorf("%w: %s", ErrPathNotFound, parentPath)
		}
		dir, ok := node.(*Directory)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotDirectory, parentPath)
		}
		return tx.AddChild(dir, child)
	})
}

// Replace swaps in a new root, typically one just decoded from a
// serialization buffer.
func (t *Tree) Replace(root *Directory) error {
	return t.Update(func(tx *Tx) error {
		return tx.Replace(root)
	})
}

// Tx is the access granted for the duration of a View or Update call.
type Tx struct {
	tree     *Tree
	writable bool
	done     bool
}

var errTxClosed = errors.New("transaction has ended")

func (tx *Tx) close() {
	tx.done = true
}

// Writable reports whether tx came from Update.
func (tx *Tx) Writable() bool {
	return tx.writable
}

// Root returns the current root directory.
func (tx *Tx) Root() *Directory {
	return tx.tree.root
}

// Resolve looks up path, through the path index when the tree has one.
// Writable transactions always walk the tree, since the index may lag
// behind changes made earlier in the same transaction.
func (tx *Tx) Resolve(path string) (Node, bool) {
	if tx.done {
		return nil, false
	}
	t := tx.tree
	if t.index == nil || tx.writable {
		return Resolve(t.root, path)
	}
	t.index.ensure(t.root, t.generation)
	return t.index.Lookup(path)
}

// AddChild attaches child to parent, which must belong to this tree.
func (tx *Tx) AddChild(parent *Directory, child Node) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if parent == nil {
		return ErrNilNode
	}
	if err := parent.AddChild(child); err != nil {
		return err
	}
	tx.tree.logger.Debug().
		Str("parent", parent.Name()).
		Str("child", child.Name()).
		Str("kind", child.Kind().String()).
		Msg("child added")
	return nil
}

// Replace installs root as the new tree root. The previous root and its
// subtree are released.
func (tx *Tx) Replace(root *Directory) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if root == nil {
		return ErrNilNode
	}
	if root.attached {
		return fmt.Errorf("%w: %q", ErrAlreadyAttached, root.Name())
	}
	root.attached = true
	tx.tree.root = root
	tx.tree.logger.Info().
		Int("children", root.Len()).
		Msg("tree root replaced")
	return nil
}

// Walk visits every node in depth-first pre-order, children in insertion
// order, including shadowed duplicates. Returning an error stops the walk.
func (tx *Tx) Walk(fn func(path string, n Node, depth int) error) error {
	if tx.done {
		return errTxClosed
	}
	return walkNode(tx.tree.root, Separator, 0, fn)
}

func walkNode(n Node, path string, depth int, fn func(string, Node, int) error) error {
	if err := fn(path, n, depth); err != nil {
		return err
	}
	dir, ok := n.(*Directory)
	if !ok {
		return nil
	}
	for _, child := range dir.children {
		childPath := path + Separator + child.Name()
		if path == Separator {
			childPath = Separator + child.Name()
		}
		if err := walkNode(child, childPath, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) checkWritable() error {
	if tx.done {
		return errTxClosed
	}
	if !tx.writable {
		return ErrReadOnlyTx
	}
	return nil
}

// touch records a mutation. Callers hold the write lock.
func (t *Tree) touch() {
	t.generation++
	t.updatedAt = t.clock.Now()
}
