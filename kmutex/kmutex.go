// Package kmutex implements the non-recursive, handoff mutex spec.md
// §4.2 describes, built directly on sched's wait queues rather than a
// native Go mutex — lock/unlock here are themselves scheduling events,
// which is the point of a kernel-level mutex as opposed to
// sync.Mutex. Adapted from the teacher's kmutex.go wait-queue wrapper.
package kmutex

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/sched"
)

// Kmutex is a non-recursive mutex with wakeup handoff: when the holder
// unlocks with waiters present, the thread at the head of the wait
// queue becomes the new holder directly, rather than racing every
// thread to re-acquire.
type Kmutex struct {
	guard  deadlock.Mutex
	holder *sched.Thread
	waitq  *sched.Queue
}

// MkMutex returns a new, unheld mutex.
func MkMutex() *Kmutex {
	return &Kmutex{waitq: sched.MkQueue()}
}

// Lock acquires the mutex, sleeping uninterruptibly if it is already
// held.
func (m *Kmutex) Lock(self *sched.Thread) {
	for {
		m.guard.Lock()
		if m.holder == nil {
			m.holder = self
			m.guard.Unlock()
			return
		}
		m.guard.Unlock()
		sched.SleepOn(self, m.waitq)
		// Woken means we were handed the lock directly by Unlock, or
		// (spuriously, never in this implementation) someone else's
		// wakeup raced us — loop re-checks holder either way.
		m.guard.Lock()
		if m.holder == self {
			m.guard.Unlock()
			return
		}
		m.guard.Unlock()
	}
}

// LockCancellable acquires the mutex like Lock, but sleeps
// cancellably. If cancelled while waiting, returns EINTR without
// holding the mutex. If cancelled after the mutex was actually handed
// to this thread, it is unlocked again before returning EINTR.
func (m *Kmutex) LockCancellable(self *sched.Thread) defs.Err_t {
	for {
		m.guard.Lock()
		if m.holder == nil {
			m.holder = self
			m.guard.Unlock()
			return 0
		}
		m.guard.Unlock()

		err := sched.SleepCancellableOn(self, m.waitq)
		m.guard.Lock()
		if m.holder == self {
			m.guard.Unlock()
			if err != 0 {
				m.Unlock(self)
				return err
			}
			return 0
		}
		m.guard.Unlock()
		if err != 0 {
			return err
		}
	}
}

// Unlock releases the mutex. self must be the current holder. If
// threads are waiting, the head of the queue becomes the new holder
// and is woken directly (handoff); otherwise the mutex becomes free.
// Unlock never blocks.
func (m *Kmutex) Unlock(self *sched.Thread) {
	m.guard.Lock()
	if m.holder != self {
		m.guard.Unlock()
		panic("kmutex: unlock by non-holder")
	}
	woken := sched.WakeupOn(m.waitq)
	if woken != nil {
		m.holder = woken
	} else {
		m.holder = nil
	}
	m.guard.Unlock()
}

// Holder reports the thread currently holding the mutex, or nil.
func (m *Kmutex) Holder() *sched.Thread {
	m.guard.Lock()
	defer m.guard.Unlock()
	return m.holder
}
