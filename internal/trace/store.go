// internal/trace/store.go
package trace

import (
	"sync"

	"github.com/tamzrod/modbus-probe/internal/status"
)

// DefaultCapacity is the default ring size.
const DefaultCapacity = 10000

// Store is a bounded, thread-safe ring buffer of trace entries.
// Append never blocks and never grows the buffer; once full, the oldest
// entry is overwritten.
type Store struct {
	mu    sync.Mutex
	buf   []Entry
	start int
	count int
}

// NewStore creates a store with the given capacity.
// A capacity <= 0 falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]Entry, capacity)}
}

// Append records one entry, evicting the oldest if the ring is full.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count < len(s.buf) {
		s.buf[(s.start+s.count)%len(s.buf)] = e
		s.count++
		return
	}

	// Full: overwrite the oldest slot.
	s.buf[s.start] = e
	s.start = (s.start + 1) % len(s.buf)
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Capacity returns the fixed ring size.
func (s *Store) Capacity() int {
	return len(s.buf)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = 0
	s.count = 0
}

// Snapshot returns all entries, oldest first.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// Filter selects entries for Query. Zero-valued fields do not filter;
// all set fields combine with AND semantics.
type Filter struct {
	SessionName    string
	ConnectionName string
	Direction      Direction
	UnitID         *uint8
	OperationCode  *byte
	Status         status.Status
	ErrorsOnly     bool

	// Limit > 0 returns only the most recent N matches.
	Limit int
}

// Query returns matching entries, oldest first.
func (s *Store) Query(f Filter) []Entry {
	entries := s.Snapshot()

	var out []Entry
	for _, e := range entries {
		if f.SessionName != "" && e.SessionName != f.SessionName {
			continue
		}
		if f.ConnectionName != "" && e.ConnectionName != f.ConnectionName {
			continue
		}
		if f.Direction != "" && e.Direction != f.Direction {
			continue
		}
		if f.UnitID != nil && e.UnitID != *f.UnitID {
			continue
		}
		if f.OperationCode != nil && e.OperationCode != *f.OperationCode {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.ErrorsOnly && !e.Status.IsError() {
			continue
		}
		out = append(out, e)
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Statistics is a single-pass aggregate over a point-in-time snapshot.
type Statistics struct {
	TotalCount    int
	SentCount     int
	ReceivedCount int

	OkCount        int
	ErrorCount     int
	TimeoutCount   int
	ChecksumCount  int
	ExceptionCount int

	AvgResponseTimeMs float64

	TimeoutsByUnit       map[uint8]int
	ChecksumByConnection map[string]int
	ExceptionsByUnit     map[uint8]int
}

// Statistics aggregates the current contents. The snapshot is taken under
// the same lock as Append, so no entry is ever counted twice or missed
// mid-append. An empty store yields zeroed statistics, not an error.
func (s *Store) Statistics() Statistics {
	s.mu.Lock()
	entries := s.snapshotLocked()
	s.mu.Unlock()

	stats := Statistics{
		TimeoutsByUnit:       make(map[uint8]int),
		ChecksumByConnection: make(map[string]int),
		ExceptionsByUnit:     make(map[uint8]int),
	}

	var timeSum float64
	var timeN int

	for _, e := range entries {
		stats.TotalCount++

		switch e.Direction {
		case Sent:
			stats.SentCount++
		case Received:
			stats.ReceivedCount++
		}

		switch e.Status {
		case status.Ok:
			stats.OkCount++
		case status.Timeout:
			stats.TimeoutCount++
			stats.TimeoutsByUnit[e.UnitID]++
		case status.ChecksumError:
			stats.ChecksumCount++
			if e.ConnectionName != "" {
				stats.ChecksumByConnection[e.ConnectionName]++
			}
		case status.ProtocolException:
			stats.ExceptionCount++
			stats.ExceptionsByUnit[e.UnitID]++
		}
		if e.Status.IsError() {
			stats.ErrorCount++
		}

		if e.ResponseTimeMs > 0 {
			timeSum += e.ResponseTimeMs
			timeN++
		}
	}

	if timeN > 0 {
		stats.AvgResponseTimeMs = timeSum / float64(timeN)
	}
	return stats
}
