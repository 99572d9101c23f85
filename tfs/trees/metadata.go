package trees

import (
	"time"
)

// DirectorySize is the size reported for every directory, independent of
// how many children it holds.
const DirectorySize int64 = 4096

// Kind identifies the variant of a Node.
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDirectory
)

// Convert Kind to String
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// truncate drops sub-second precision and the monotonic reading so that
// timestamps compare equal after a trip through the codec.
func truncate(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0)
}

// nodeOptions collects NodeOption values for NewFile and NewDirectory.
type nodeOptions struct {
	clock      Clock
	createdAt  time.Time
	modifiedAt time.Time
	timesSet   bool
}

// NodeOption customizes node construction.
type NodeOption func(*nodeOptions)

// WithClock sets the clock a node uses for its own timestamps. A
// directory keeps it for the modification time bumped by AddChild.
func WithClock(c Clock) NodeOption {
	return func(o *nodeOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithTimes pins the creation and modification timestamps.
func WithTimes(createdAt, modifiedAt time.Time) NodeOption {
	return func(o *nodeOptions) {
		o.createdAt = createdAt
		o.modifiedAt = modifiedAt
		o.timesSet = true
	}
}

func applyNodeOptions(opts []NodeOption) nodeOptions {
	o := nodeOptions{clock: RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.timesSet {
		now := o.clock.Now()
		o.createdAt, o.modifiedAt = now, now
	}
	o.createdAt = truncate(o.createdAt)
	o.modifiedAt = truncate(o.modifiedAt)
	return o
}
