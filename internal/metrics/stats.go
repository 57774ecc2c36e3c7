// Package metrics records cycle outcomes for operators: in-process counters
// for the status endpoint, and CloudWatch datapoints when configured.
package metrics

import (
	"sync"
	"time"

	"github.com/imrishuroy/insurance-relay/internal/relay"
)

// Stats counts cycle outcomes. Safe for concurrent use.
type Stats struct {
	mu          sync.Mutex
	started     time.Time
	cycles      int64
	skipped     int64
	outcomes    map[relay.Outcome]int64
	last        *relay.Result
	lastAt      time.Time
	lastElapsed time.Duration
	nowFunc     func() time.Time
}

// Snapshot is a copy of Stats suitable for JSON.
type Snapshot struct {
	StartedAt     time.Time        `json:"started_at"`
	Cycles        int64            `json:"cycles"`
	SkippedTicks  int64            `json:"skipped_ticks"`
	Outcomes      map[string]int64 `json:"outcomes"`
	LastOutcome   string           `json:"last_outcome,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	LastCycleAt   *time.Time       `json:"last_cycle_at,omitempty"`
	LastElapsedMS int64            `json:"last_elapsed_ms"`
}

func NewStats() *Stats {
	return &Stats{
		started:  time.Now(),
		outcomes: map[relay.Outcome]int64{},
		nowFunc:  time.Now,
	}
}

func (s *Stats) ObserveCycle(res relay.Result, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.outcomes[res.Outcome]++
	s.last = &res
	s.lastAt = s.nowFunc()
	s.lastElapsed = elapsed
}

func (s *Stats) ObserveSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		StartedAt:     s.started,
		Cycles:        s.cycles,
		SkippedTicks:  s.skipped,
		Outcomes:      make(map[string]int64, len(relay.Outcomes)),
		LastElapsedMS: s.lastElapsed.Milliseconds(),
	}
	for _, o := range relay.Outcomes {
		snap.Outcomes[o.String()] = s.outcomes[o]
	}
	if s.last != nil {
		at := s.lastAt
		snap.LastOutcome = s.last.Outcome.String()
		snap.LastCycleAt = &at
		if s.last.Err != nil {
			snap.LastError = s.last.Err.Error()
		}
	}
	return snap
}
