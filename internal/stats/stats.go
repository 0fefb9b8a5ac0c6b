// Package stats tracks the collector counters shared between workers.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds the cross-worker counters. Each counter has a single
// writer: the receiver increments Received, the writer increments
// Written and ParseDropped, so plain atomic adds are sufficient.
type Stats struct {
	received   atomic.Int64
	written    atomic.Int64
	parseDrops atomic.Int64
	startedAt  time.Time

	// Rate snapshot, touched only by the status loop.
	mu           sync.Mutex
	lastSample   time.Time
	lastReceived int64
}

// New creates a Stats with the rate snapshot anchored at now.
func New(now time.Time) *Stats {
	return &Stats{startedAt: now, lastSample: now}
}

func (s *Stats) IncReceived()   { s.received.Add(1) }
func (s *Stats) IncWritten()    { s.written.Add(1) }
func (s *Stats) IncParseDrops() { s.parseDrops.Add(1) }

func (s *Stats) Received() int64   { return s.received.Load() }
func (s *Stats) Written() int64    { return s.written.Load() }
func (s *Stats) ParseDrops() int64 { return s.parseDrops.Load() }

// StartedAt returns when collection began.
func (s *Stats) StartedAt() time.Time { return s.startedAt }

// SampleRate computes the instantaneous packet rate since the previous
// sample and advances the snapshot. Called from the 1 Hz status loop.
func (s *Stats) SampleRate(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.lastSample).Seconds()
	current := s.received.Load()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(current-s.lastReceived) / elapsed
	}

	s.lastSample = now
	s.lastReceived = current
	return rate
}
