package codec

import (
	"fmt"

	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

// Snapshot encodes the whole tree under its read lock.
func Snapshot(tree *trees.Tree) ([]byte, error) {
	var out []byte
	err := tree.View(func(tx *trees.Tx) error {
		data, err := Marshal(tx.Root())
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot tree %s: %w", tree.ID(), err)
	}

	logger := tree.Logger()
	logger.Debug().Int("bytes", len(out)).Msg("tree snapshot encoded")
	return out, nil
}

// Restore decodes data and installs the result as the tree's root. The
// decode happens before the write lock is taken, so readers are only
// blocked for the swap itself. The buffer must hold a directory.
func Restore(tree *trees.Tree, data []byte, opts ...DecoderOption) error {
	opts = append([]DecoderOption{WithNodeOptions(trees.WithClock(tree.Clock()))}, opts...)
	node, err := Unmarshal(data, opts...)
	if err != nil {
		return fmt.Errorf("restore tree %s: %w", tree.ID(), err)
	}

	root, ok := node.(*trees.Directory)
	if !ok {
		return fmt.Errorf("restore tree %s: %w: top-level node is a %s", tree.ID(), trees.ErrNotDirectory, node.Kind())
	}
	if err := tree.Replace(root); err != nil {
		return fmt.Errorf("restore tree %s: %w", tree.ID(), err)
	}
	return nil
}
