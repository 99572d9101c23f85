package trees

import (
	"time"
)

// computeTreeMetrics recursively computes metrics starting from the given node.
func computeTreeMetrics(node Node, depth int, metrics *TreeMetrics) {
	if node == nil {
		return
	}

	metrics.TotalNodes++
	if depth > metrics.MaxDepth {
		metrics.MaxDepth = depth
	}

	switch n := node.(type) {
	case *File:
		metrics.TotalFiles++
		metrics.TotalBytes += n.Size()
	case *Directory:
		metrics.TotalDirs++
		for _, child := range n.children {
			computeTreeMetrics(child, depth+1, metrics)
		}
	}
}

// Metrics walks the tree under the read lock and reports its shape.
// TotalBytes counts file content only.
func (t *Tree) Metrics() TreeMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start := time.Now()

	metrics := TreeMetrics{
		Generation:  t.generation,
		LastUpdated: t.updatedAt,
	}
	computeTreeMetrics(t.root, 0, &metrics)
	metrics.ProcessingTime = time.Since(start)

	return metrics
}
