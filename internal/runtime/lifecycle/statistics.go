package lifecycle

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/drblury/mics/internal/runtime/jsoncodec"
)

// Statistics aggregates counters shared by every microservice of a run.
type Statistics struct {
	runtime atomic.Int64

	mu       sync.RWMutex
	counters map[string]int64
}

// StatisticsSnapshot is the serialisable form of Statistics.
type StatisticsSnapshot struct {
	Runtime  int64            `json:"system_runtime"`
	Counters map[string]int64 `json:"counters"`
}

func NewStatistics() *Statistics {
	return &Statistics{counters: make(map[string]int64)}
}

// IncrementRuntime adds one tick to the system runtime and returns the new value.
func (s *Statistics) IncrementRuntime() int64 {
	return s.runtime.Add(1)
}

func (s *Statistics) Runtime() int64 {
	return s.runtime.Load()
}

// Add increments the named counter by delta and returns the new value.
func (s *Statistics) Add(name string, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = make(map[string]int64)
	}
	s.counters[name] += delta
	return s.counters[name]
}

// Get returns the named counter, zero when it was never touched.
func (s *Statistics) Get(name string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}

// Names lists the counters in lexical order.
func (s *Statistics) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.counters))
	for name := range s.counters {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return StatisticsSnapshot{Runtime: s.runtime.Load(), Counters: counters}
}

func (s *Statistics) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(s.Snapshot())
}

// WriteJSON writes an indented snapshot to w.
func (s *Statistics) WriteJSON(w io.Writer) error {
	data, err := jsoncodec.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
