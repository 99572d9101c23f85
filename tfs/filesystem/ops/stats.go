package ops

import (
	"sync"
	"time"
)

// OperationStats counts calls to one adapter operation.
type OperationStats struct {
	Calls  int64
	Errors int64
}

// Stats is a point-in-time copy of the adapter counters.
type Stats struct {
	Operations map[string]OperationStats
	Since      time.Time
}

type opStats struct {
	mu      sync.Mutex
	ops     map[string]*OperationStats
	started time.Time
}

func newOpStats(started time.Time) *opStats {
	return &opStats{
		ops:     make(map[string]*OperationStats),
		started: started,
	}
}

func (s *opStats) record(op string, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.ops[op]
	if !ok {
		st = &OperationStats{}
		s.ops[op] = st
	}
	st.Calls++
	if failed {
		st.Errors++
	}
}

// Stats returns the per-operation counters collected since New.
func (a *Adapter) Stats() Stats {
	a.stats.mu.Lock()
	defer a.stats.mu.Unlock()

	out := Stats{
		Operations: make(map[string]OperationStats, len(a.stats.ops)),
		Since:      a.stats.started,
	}
	for op, st := range a.stats.ops {
		out.Operations[op] = *st
	}
	return out
}
