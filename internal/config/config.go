// Package config holds process-wide engine tunables behind a mutex, in the
// same shape the host's render/world-gen settings once took: a package
// struct with clamped setters and sane defaults, safe to read from any
// goroutine and to write from the host between ticks.
package config

import "sync"

// EngineSettings holds runtime-tunable engine parameters. Material
// properties are data (see internal/material) and are not part of this
// struct; these are the knobs that shape engine behavior rather than
// material identity.
type EngineSettings struct {
	mu sync.RWMutex

	// streamWindowRadius is the visible window half-width, in chunks,
	// around the viewer position passed to UpdateCenter.
	streamWindowRadius int
	// poolHeadroom is how many extra chunk slots the pool keeps beyond the
	// window's footprint, absorbing in-flight loads during a fast pan.
	poolHeadroom int
	// coolThreshold is how many consecutive quiet ticks an Active tile
	// waits before its dirty rect is dropped to Empty.
	coolThreshold int
	// ticksPerSecond is used to convert the burn spread_rate/duration
	// tunables (expressed per-second) into per-tick probabilities.
	ticksPerSecond int
	// deltaThreshold is the maximum number of differing pixels a chunk may
	// have relative to its seeded baseline before persistence switches from
	// a Delta record to a Full record.
	deltaThreshold int
}

var global = &EngineSettings{
	streamWindowRadius: 8,
	poolHeadroom:       16,
	coolThreshold:      30,
	ticksPerSecond:     60,
	deltaThreshold:     512,
}

// Global returns the process-wide settings instance.
func Global() *EngineSettings { return global }

func (s *EngineSettings) StreamWindowRadius() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamWindowRadius
}

// SetStreamWindowRadius sets the viewer window half-width, clamped to a
// sane range so a bad host value can't make the pool unboundedly large.
func (s *EngineSettings) SetStreamWindowRadius(r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r < 1 {
		r = 1
	}
	if r > 64 {
		r = 64
	}
	s.streamWindowRadius = r
}

func (s *EngineSettings) PoolHeadroom() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poolHeadroom
}

func (s *EngineSettings) SetPoolHeadroom(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	s.poolHeadroom = n
}

// PoolCapacity returns the chunk pool's total slot count for the current
// window radius and headroom: a (2r+1)^2 window plus headroom.
func (s *EngineSettings) PoolCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	side := 2*s.streamWindowRadius + 1
	return side*side + s.poolHeadroom
}

func (s *EngineSettings) CoolThreshold() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coolThreshold
}

func (s *EngineSettings) SetCoolThreshold(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.coolThreshold = n
}

func (s *EngineSettings) TicksPerSecond() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticksPerSecond
}

func (s *EngineSettings) SetTicksPerSecond(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.ticksPerSecond = n
}

func (s *EngineSettings) DeltaThreshold() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deltaThreshold
}

func (s *EngineSettings) SetDeltaThreshold(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	s.deltaThreshold = n
}
