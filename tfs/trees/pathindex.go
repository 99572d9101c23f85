package trees

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/armon/go-radix"
	"github.com/rs/zerolog"
)

// PathIndexStats tracks performance metrics for the path index
type PathIndexStats struct {
	TotalNodes  int64
	PathLookups int64
	Hits        int64
	Misses      int64
	Rebuilds    int64
	Generation  uint64
}

// PathIndex maps absolute paths to nodes using a compressed trie
// (patricia tree), so a lookup costs O(k) in the path length instead of
// a scan per level.
//
// Only nodes the linear resolver can reach are indexed: a child whose
// name repeats an earlier sibling is shadowed by that sibling, and so is
// everything below it. Names that are empty or contain the separator can
// never be named by a path and are skipped too. Lookups therefore always
// agree with Resolve.
type PathIndex struct {
	mu         sync.RWMutex
	tree       *radix.Tree
	generation uint64
	built      bool
	logger     zerolog.Logger

	lookups  atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	rebuilds atomic.Int64
}

// NewPathIndex creates an empty, unbuilt index.
func NewPathIndex(logger zerolog.Logger) *PathIndex {
	return &PathIndex{
		tree:   radix.New(),
		logger: logger.With().Str("component", "pathindex").Logger(),
	}
}

// Rebuild replaces the index contents with the nodes reachable from root
// and tags them with generation.
func (idx *PathIndex) Rebuild(root *Directory, generation uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rebuildLocked(root, generation)
}

// ensure rebuilds the index if it was built for another generation.
func (idx *PathIndex) ensure(root *Directory, generation uint64) {
	idx.mu.RLock()
	fresh := idx.built && idx.generation == generation
	idx.mu.RUnlock()
	if fresh {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.built && idx.generation == generation {
		return
	}
	idx.rebuildLocked(root, generation)
}

// invalidate forces the next lookup through ensure to rebuild.
func (idx *PathIndex) invalidate() {
	idx.mu.Lock()
	idx.built = false
	idx.mu.Unlock()
}

func (idx *PathIndex) rebuildLocked(root *Directory, generation uint64) {
	tree := radix.New()
	if root != nil {
		tree.Insert(Separator, Node(root))
		indexChildren(tree, root, "")
	}
	idx.tree = tree
	idx.generation = generation
	idx.built = true
	idx.rebuilds.Add(1)

	idx.logger.Debug().
		Int("total_nodes", tree.Len()).
		Uint64("generation", generation).
		Msg("path index rebuilt")
}

func indexChildren(tree *radix.Tree, dir *Directory, prefix string) {
	seen := make(map[string]struct{}, len(dir.children))
	for _, child := range dir.children {
		name := child.Name()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if !addressable(name) {
			continue
		}

		key := prefix + Separator + name
		tree.Insert(key, child)
		if sub, ok := child.(*Directory); ok {
			indexChildren(tree, sub, key)
		}
	}
}

func addressable(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] == Separator[0] {
			return false
		}
	}
	return true
}

// Lookup finds a node by path. The path is normalized the same way
// Resolve splits it.
func (idx *PathIndex) Lookup(path string) (Node, bool) {
	key := JoinPath(SplitPath(path))

	idx.mu.RLock()
	value, found := idx.tree.Get(key)
	idx.mu.RUnlock()

	idx.lookups.Add(1)
	if !found {
		idx.misses.Add(1)
		return nil, false
	}
	idx.hits.Add(1)
	return value.(Node), true
}

// Len returns the number of indexed paths.
func (idx *PathIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// GetStats returns a copy of the current path index statistics
func (idx *PathIndex) GetStats() PathIndexStats {
	idx.mu.RLock()
	total, generation := idx.tree.Len(), idx.generation
	idx.mu.RUnlock()

	return PathIndexStats{
		TotalNodes:  int64(total),
		PathLookups: idx.lookups.Load(),
		Hits:        idx.hits.Load(),
		Misses:      idx.misses.Load(),
		Rebuilds:    idx.rebuilds.Load(),
		Generation:  generation,
	}
}

// Validate checks every indexed path against the linear resolver.
func (idx *PathIndex) Validate(root *Directory) []error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var errs []error
	idx.tree.Walk(func(key string, value interface{}) bool {
		resolved, ok := Resolve(root, key)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("stale_entry: %s no longer resolves", key))
		case resolved != value.(Node):
			errs = append(errs, fmt.Errorf("shadowed_entry: %s resolves to a different node", key))
		}
		return false
	})

	if len(errs) > 0 {
		idx.logger.Warn().Int("error_count", len(errs)).Msg("path index validation found issues")
	}
	return errs
}
