package clock

import "sync/atomic"

// Manual is a test Source with an explicitly advanced value.
type Manual struct {
	ns atomic.Uint64
}

// NewManual returns a Manual clock starting at the given nanosecond value.
func NewManual(startNS uint64) *Manual {
	m := &Manual{}
	m.ns.Store(startNS)
	return m
}

// NowNS implements Source.
func (m *Manual) NowNS() uint64 { return m.ns.Load() }

// Advance moves the clock forward by delta nanoseconds and returns the new value.
func (m *Manual) Advance(delta uint64) uint64 { return m.ns.Add(delta) }

// Set pins the clock to an explicit value.
func (m *Manual) Set(ns uint64) { m.ns.Store(ns) }
