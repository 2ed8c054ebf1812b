// Package accnt accumulates per-process CPU accounting, adapted
// verbatim from the teacher's accnt package (it depended on nothing
// hardware-specific to begin with).
package accnt

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// Accnt_t accumulates per-process accounting information. Both Userns
// and Sysns store runtime in nanoseconds. The embedded mutex lets
// callers take a consistent snapshot when exporting usage statistics
// (spec.md §4.3 supplement: rusage on waitpid, see SPEC_FULL.md).
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// Io_time removes time spent waiting for I/O from system time.
func (a *Accnt_t) Io_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Sleep_time removes time spent sleeping from system time.
func (a *Accnt_t) Sleep_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Finish finalizes accounting by adding time since inttime to system
// time.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// Add merges another accounting record into this one (used when a
// reaped child's usage is folded into its parent's, per spec.md's
// rusage supplement).
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	defer a.Unlock()
	n.Lock()
	defer n.Unlock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
}

// Rusage_t is the decoded form of an accounting snapshot.
type Rusage_t struct {
	UserSec, UserUsec int
	SysSec, SysUsec   int
}

// Fetch returns a consistent snapshot of the accounting information.
func (a *Accnt_t) Fetch() Rusage_t {
	a.Lock()
	defer a.Unlock()
	totv := func(nano int64) (int, int) {
		return int(nano / 1e9), int((nano % 1e9) / 1000)
	}
	var ru Rusage_t
	ru.UserSec, ru.UserUsec = totv(a.Userns)
	ru.SysSec, ru.SysUsec = totv(a.Sysns)
	return ru
}

// Bytes serializes a rusage snapshot the way a copy-to-user of struct
// rusage would.
func (ru Rusage_t) Bytes() []byte {
	b := make([]byte, 4*8)
	vals := []uint64{uint64(ru.UserSec), uint64(ru.UserUsec), uint64(ru.SysSec), uint64(ru.SysUsec)}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[i*8:], v)
	}
	return b
}
