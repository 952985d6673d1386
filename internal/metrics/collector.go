package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates counters for event processing and window placement.
type Collector struct {
	mu      sync.RWMutex
	enabled bool
	started time.Time
	kinds   map[string]*KindMetrics
	totals  Totals
}

// KindMetrics captures per event kind counters.
type KindMetrics struct {
	Kind     string    `json:"kind"`
	Count    uint64    `json:"count"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
}

// Totals aggregates engine-wide counters.
type Totals struct {
	Events          uint64        `json:"events"`
	Batches         uint64        `json:"batches"`
	MaxBatch        int           `json:"maxBatch"`
	Retiles         uint64        `json:"retiles"`
	Placements      uint64        `json:"placements"`
	PlacementErrors uint64        `json:"placementErrors"`
	Dropped         uint64        `json:"dropped"`
	LastBatch       time.Duration `json:"lastBatchNs"`
	LastBatchAt     time.Time     `json:"lastBatchAt,omitempty"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled bool          `json:"enabled"`
	Started time.Time     `json:"started,omitempty"`
	Totals  Totals        `json:"totals"`
	Kinds   []KindMetrics `json:"kinds,omitempty"`
}

// NewCollector returns a collector with the provided state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.totals = Totals{}
	if !enabled {
		c.kinds = nil
		c.started = time.Time{}
		return
	}
	c.started = time.Now()
	c.kinds = make(map[string]*KindMetrics)
}

// RecordEvent counts one processed event of kind.
func (c *Collector) RecordEvent(kind string) {
	c.update(func(now time.Time) {
		m, ok := c.kinds[kind]
		if !ok {
			m = &KindMetrics{Kind: kind}
			c.kinds[kind] = m
		}
		m.Count++
		m.LastSeen = now
		c.totals.Events++
	})
}

// RecordBatch counts one drained batch and its duration.
func (c *Collector) RecordBatch(size int, took time.Duration) {
	c.update(func(now time.Time) {
		c.totals.Batches++
		if size > c.totals.MaxBatch {
			c.totals.MaxBatch = size
		}
		c.totals.LastBatch = took
		c.totals.LastBatchAt = now
	})
}

// RecordRetile counts one workspace recomputation.
func (c *Collector) RecordRetile() {
	c.update(func(time.Time) { c.totals.Retiles++ })
}

// RecordPlacement counts one successful window placement.
func (c *Collector) RecordPlacement() {
	c.update(func(time.Time) { c.totals.Placements++ })
}

// RecordPlacementError counts one failed window placement.
func (c *Collector) RecordPlacementError() {
	c.update(func(time.Time) { c.totals.PlacementErrors++ })
}

// SetDropped mirrors the queue's dropped event counter.
func (c *Collector) SetDropped(n uint64) {
	c.update(func(time.Time) { c.totals.Dropped = n })
}

func (c *Collector) update(mutate func(time.Time)) {
	if c == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if c.kinds == nil {
		c.kinds = make(map[string]*KindMetrics)
	}
	mutate(now)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	snap.Totals = c.totals
	if len(c.kinds) == 0 {
		return snap
	}
	snap.Kinds = make([]KindMetrics, 0, len(c.kinds))
	for _, m := range c.kinds {
		snap.Kinds = append(snap.Kinds, *m)
	}
	sort.Slice(snap.Kinds, func(i, j int) bool {
		if snap.Kinds[i].Count == snap.Kinds[j].Count {
			return snap.Kinds[i].Kind < snap.Kinds[j].Kind
		}
		return snap.Kinds[i].Count > snap.Kinds[j].Count
	})
	return snap
}
