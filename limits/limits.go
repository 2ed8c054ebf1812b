// Package limits tracks system-wide resource budgets, adapted from
// the teacher's limits package. Network/disk-specific fields (arp
// entries, routes, tcp segments, block cache) are dropped — this
// kernel core has no network stack or disk driver (spec.md §1
// Out of scope) — leaving two budgets: live processes, which proc
// enforces, and cached vnodes, which is configured but not consulted
// by any component.
package limits

import "sync/atomic"

// Sysatomic_t is a numeric limit that can be atomically taken/given
// back, used as a simple admission-control token bucket.
type Sysatomic_t struct {
	v atomic.Int64
}

// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(n uint) {
	s.v.Add(int64(n))
}

// Taken tries to decrement the limit by the provided amount. It
// returns true on success, leaving the limit unchanged on failure.
func (s *Sysatomic_t) Taken(n uint) bool {
	if s.v.Add(-int64(n)) >= 0 {
		return true
	}
	s.v.Add(int64(n))
	return false
}

// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

// Give increments the limit by one.
func (s *Sysatomic_t) Give() { s.Given(1) }

// Remaining reports the current budget.
func (s *Sysatomic_t) Remaining() int64 { return s.v.Load() }

// Syslimit_t tracks system-wide resource limits relevant to this
// kernel core.
type Syslimit_t struct {
	Sysprocs Sysatomic_t
	Vnodes   Sysatomic_t
}

// Syslimit describes the configured system-wide limits.
var Syslimit = MkSysLimit()

// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	sl := &Syslimit_t{}
	sl.Sysprocs.Given(1 << 14)
	sl.Vnodes.Given(1 << 16)
	return sl
}
