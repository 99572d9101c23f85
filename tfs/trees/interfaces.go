package trees

import (
	"time"
)

// Node is a File or a Directory. The set is closed: the unexported
// marker method keeps other packages from adding variants, so a type
// switch over *File and *Directory is exhaustive.
type Node interface {
	Kind() Kind
	Name() string
	Size() int64
	CreatedAt() time.Time
	ModifiedAt() time.Time

	isNode()
}

// Clock supplies the current time for node timestamps.
type Clock interface {
	Now() time.Time
}

// TreeMetrics holds statistical information about the tree
type TreeMetrics struct {
	TotalNodes     int64
	TotalFiles     int64
	TotalDirs      int64
	TotalBytes     int64
	MaxDepth       int
	Generation     uint64
	LastUpdated    time.Time
	ProcessingTime time.Duration
}
