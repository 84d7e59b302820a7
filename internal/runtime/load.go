package runtime

import (
	"runtime/metrics"
	"sync"
	"time"
)

const (
	goroutinesMetric  = "/sched/goroutines:goroutines"
	heapObjectsMetric = "/memory/classes/heap/objects:bytes"
)

// RelayLoad describes how busy the relay is between two stats requests.
type RelayLoad struct {
	// EventsPerSecond is the hub publish rate since the previous sample.
	EventsPerSecond      float64 `json:"events_per_second"`
	HeapBytes            uint64  `json:"heap_bytes"`
	Goroutines           uint64  `json:"goroutines"`
	// GoroutinesPerSession is zero without sessions.
	GoroutinesPerSession float64 `json:"goroutines_per_session"`
}

type loadTracker struct {
	mu            sync.Mutex
	samples       []metrics.Sample
	lastPublished uint64
	lastAt        time.Time
}

func newLoadTracker() *loadTracker {
	return &loadTracker{samples: []metrics.Sample{
		{Name: goroutinesMetric},
		{Name: heapObjectsMetric},
	}}
}

// Sample derives the load from the hub's published counter and the number of
// open sessions. The first sample reports no rate.
func (l *loadTracker) Sample(published uint64, sessions int) RelayLoad {
	l.mu.Lock()
	defer l.mu.Unlock()

	metrics.Read(l.samples)
	load := RelayLoad{
		Goroutines: uint64Value(l.samples[0]),
		HeapBytes:  uint64Value(l.samples[1]),
	}
	if sessions > 0 {
		load.GoroutinesPerSession = float64(load.Goroutines) / float64(sessions)
	}

	now := time.Now()
	if !l.lastAt.IsZero() && published >= l.lastPublished {
		if elapsed := now.Sub(l.lastAt).Seconds(); elapsed > 0 {
			load.EventsPerSecond = float64(published-l.lastPublished) / elapsed
		}
	}
	l.lastPublished = published
	l.lastAt = now
	return load
}

func uint64Value(s metrics.Sample) uint64 {
	if s.Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s.Value.Uint64()
}
