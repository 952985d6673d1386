package engine

import (
	"sync"
	"time"
)

// BatchRecord describes one drained batch.
type BatchRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	Events     int           `json:"events"`
	Kinds      []string      `json:"kinds,omitempty"`
	Retiled    []int         `json:"retiled,omitempty"`
	Placements int           `json:"placements"`
	Duration   time.Duration `json:"durationNs"`
}

type batchLog struct {
	mu      sync.Mutex
	entries []BatchRecord
	limit   int
}

func newBatchLog(limit int) *batchLog {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &batchLog{limit: limit}
}

func (l *batchLog) record(entry BatchRecord) {
	if l == nil {
		return
	}
	entry.Kinds = append([]string(nil), entry.Kinds...)
	entry.Retiled = append([]int(nil), entry.Retiled...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, entry)
}

func (l *batchLog) snapshot() []BatchRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]BatchRecord, len(l.entries))
	for i, entry := range l.entries {
		entry.Kinds = append([]string(nil), entry.Kinds...)
		entry.Retiled = append([]int(nil), entry.Retiled...)
		out[i] = entry
	}
	return out
}
