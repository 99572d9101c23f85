// Package ops answers attribute, listing and read queries against a
// trees.Tree in the vocabulary a filesystem dispatch runtime expects.
package ops

import (
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/common"
	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

// Permission bits reported for every node. The tree stores no modes.
const (
	DirMode  fs.FileMode = fs.ModeDir | 0o755
	FileMode fs.FileMode = 0o644
)

// Synthetic entries that lead every directory listing.
const (
	DotEntry    = "."
	DotDotEntry = ".."
)

// Operation names, used as Op in returned *fs.PathError values and as
// keys in Stats.
const (
	OpGetAttr       = "getattr"
	OpListDirectory = "listdir"
	OpListEntries   = "listentries"
	OpReadBytes     = "read"
)

// Attributes describes a resolved node. AccessedAt is not stored in the
// tree; it is the adapter clock's reading at call time.
type Attributes struct {
	Kind       trees.Kind
	Mode       fs.FileMode
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
	AccessedAt time.Time
}

// IsDir reports whether the attributes belong to a directory.
func (a Attributes) IsDir() bool {
	return a.Kind == trees.KindDirectory
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name string
	Kind trees.Kind
}

// Adapter is safe for concurrent use. Each call runs inside a single
// Tree.View, so it sees the tree either before or after any mutation.
type Adapter struct {
	tree   *trees.Tree
	clock  trees.Clock
	logger zerolog.Logger
	stats  *opStats
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithClock sets the clock used to synthesize AccessedAt.
func WithClock(c trees.Clock) Option {
	return func(a *Adapter) {
		if c != nil {
			a.clock = c
		}
	}
}

// New wraps tree. By default the adapter logs through the tree's logger
// and reads time from the tree's clock.
func New(tree *trees.Tree, opts ...Option) *Adapter {
	a := &Adapter{
		tree:   tree,
		clock:  tree.Clock(),
		logger: tree.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.stats = newOpStats(a.clock.Now())
	a.logger = a.logger.With().Str("component", "ops").Logger()
	return a
}

// Tree returns the wrapped tree.
func (a *Adapter) Tree() *trees.Tree {
	return a.tree
}

// GetAttr resolves path and reports its attributes.
func (a *Adapter) GetAttr(path string) (Attributes, error) {
	var attr Attributes
	err := a.tree.View(func(tx *trees.Tx) error {
		n, ok := tx.Resolve(path)
		if !ok {
			return common.ErrNotFound
		}
		attr = attributesOf(n)
		return nil
	})
	if err != nil {
		return Attributes{}, a.fail(OpGetAttr, path, err)
	}
	attr.AccessedAt = a.clock.Now()
	a.served(OpGetAttr, path)
	return attr, nil
}

// ListDirectory returns ".", ".." and then each child name in insertion
// order. Duplicate names are listed as often as they occur.
func (a *Adapter) ListDirectory(path string) ([]string, error) {
	var names []string
	err := a.tree.View(func(tx *trees.Tx) error {
		dir, err := resolveDirectory(tx, path)
		if err != nil {
			return err
		}
		children := dir.Children()
		names = make([]string, 0, len(children)+2)
		names = append(names, DotEntry, DotDotEntry)
		for _, child := range children {
			names = append(names, child.Name())
		}
		return nil
	})
	if err != nil {
		return nil, a.fail(OpListDirectory, path, err)
	}
	a.served(OpListDirectory, path)
	return names, nil
}

// ListEntries is ListDirectory with the kind of each entry. The
// synthetic entries are directories.
func (a *Adapter) ListEntries(path string) ([]DirEntry, error) {
	var entries []DirEntry
	err := a.tree.View(func(tx *trees.Tx) error {
		dir, err := resolveDirectory(tx, path)
		if err != nil {
			return err
		}
		children := dir.Children()
		entries = make([]DirEntry, 0, len(children)+2)
		entries = append(entries,
			DirEntry{Name: DotEntry, Kind: trees.KindDirectory},
			DirEntry{Name: DotDotEntry, Kind: trees.KindDirectory},
		)
		for _, child := range children {
			entries = append(entries, DirEntry{Name: child.Name(), Kind: child.Kind()})
		}
		return nil
	})
	if err != nil {
		return nil, a.fail(OpListEntries, path, err)
	}
	a.served(OpListEntries, path)
	return entries, nil
}

// ReadBytes returns up to maxLength bytes of the file at path starting
// at offset. Reads are clipped to the end of the file; a read starting
// at or past the end returns an empty slice. A negative maxLength reads
// nothing. The returned slice is a copy.
func (a *Adapter) ReadBytes(path string, offset int64, maxLength int) ([]byte, error) {
	var out []byte
	err := a.tree.View(func(tx *trees.Tx) error {
		n, ok := tx.Resolve(path)
		if !ok {
			return common.ErrNotFound
		}
		f, ok := n.(*trees.File)
		if !ok {
			return common.ErrNotAFile
		}
		if offset < 0 {
			return common.ErrInvalidOffset
		}

		size := f.Size()
		if offset >= size || maxLength <= 0 {
			out = []byte{}
			return nil
		}
		length := size - offset
		if int64(maxLength) < length {
			length = int64(maxLength)
		}
		out = make([]byte, length)
		// out never extends past the end, so ReadAt fills it.
		_, err := f.ReadAt(out, offset)
		return err
	})
	if err != nil {
		return nil, a.fail(OpReadBytes, path, err)
	}
	a.served(OpReadBytes, path)
	return out, nil
}

func resolveDirectory(tx *trees.Tx, path string) (*trees.Directory, error) {
	n, ok := tx.Resolve(path)
	if !ok {
		return nil, common.ErrNotFound
	}
	dir, ok := n.(*trees.Directory)
	if !ok {
		return nil, common.ErrNotADirectory
	}
	return dir, nil
}

func attributesOf(n trees.Node) Attributes {
	attr := Attributes{
		Kind:       n.Kind(),
		Size:       n.Size(),
		CreatedAt:  n.CreatedAt(),
		ModifiedAt: n.ModifiedAt(),
	}
	switch n.(type) {
	case *trees.Directory:
		attr.Mode = DirMode
	case *trees.File:
		attr.Mode = FileMode
	}
	return attr
}

func (a *Adapter) served(op, path string) {
	a.stats.record(op, false)
	a.logger.Debug().Str("op", op).Str("path", path).Msg("operation served")
}

func (a *Adapter) fail(op, path string, err error) error {
	a.stats.record(op, true)
	if common.IsExpected(err) {
		a.logger.Debug().Str("op", op).Str("path", path).Err(err).Msg("operation rejected")
	} else {
		a.logger.Error().Str("op", op).Str("path", path).Err(err).Msg("operation failed")
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}
