package kmutex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/sched"
)

type fakeProc struct{ pid defs.Pid_t }

func (f *fakeProc) PID() defs.Pid_t { return f.pid }

// withIdle gives each test its own perpetual idle thread so later
// threads can ExitSwitch without starving the run queue, then stops it
// cleanly before returning.
func withIdle(t *testing.T, fn func()) {
	t.Helper()
	stopCh := make(chan struct{})
	stoppedCh := make(chan struct{})
	idle := sched.NewThread(&fakeProc{pid: defs.PidIdle}, 0, "idle")
	sched.Start(idle, func(self *sched.Thread) {
		for {
			select {
			case <-stopCh:
				close(stoppedCh)
				return
			default:
			}
			sched.Yield(self)
		}
	})
	sched.Boot()

	fn()

	close(stopCh)
	select {
	case <-stoppedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("idle thread never stopped")
	}
}

func TestLockUnlockUncontended(t *testing.T) {
	withIdle(t, func() {
		done := make(chan struct{})
		m := MkMutex()
		th := sched.NewThread(&fakeProc{pid: 1}, 1, "t")
		sched.Start(th, func(self *sched.Thread) {
			m.Lock(self)
			assert.Equal(t, self, m.Holder())
			m.Unlock(self)
			assert.Nil(t, m.Holder())
			close(done)
			sched.ExitSwitch(self)
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	})
}

func TestLockHandoffOrdering(t *testing.T) {
	withIdle(t, func() {
		m := MkMutex()
		order := make(chan int, 3)

		holder := sched.NewThread(&fakeProc{pid: 2}, 2, "holder")
		waiterA := sched.NewThread(&fakeProc{pid: 3}, 3, "waiterA")
		waiterB := sched.NewThread(&fakeProc{pid: 4}, 4, "waiterB")

		holdingCh := make(chan struct{})
		releaseCh := make(chan struct{})

		sched.Start(holder, func(self *sched.Thread) {
			m.Lock(self)
			close(holdingCh)
			<-releaseCh
			order <- 0
			m.Unlock(self)
			sched.ExitSwitch(self)
		})

		<-holdingCh

		sched.Start(waiterA, func(self *sched.Thread) {
			m.Lock(self)
			order <- 1
			m.Unlock(self)
			sched.ExitSwitch(self)
		})
		// holder still holds m here, so this loop does not wait; waiterA
		// queues ahead of waiterB because sched.Start enqueues in call order
		for i := 0; i < 100 && m.Holder() != holder; i++ {
		}

		sched.Start(waiterB, func(self *sched.Thread) {
			m.Lock(self)
			order <- 2
			m.Unlock(self)
			sched.ExitSwitch(self)
		})

		close(releaseCh)

		got := []int{<-order, <-order, <-order}
		assert.Equal(t, []int{0, 1, 2}, got, "waiters must be handed the lock in FIFO order")
	})
}

func TestLockCancellableReturnsEINTR(t *testing.T) {
	withIdle(t, func() {
		m := MkMutex()
		result := make(chan defs.Err_t, 1)

		holder := sched.NewThread(&fakeProc{pid: 5}, 5, "holder")
		waiter := sched.NewThread(&fakeProc{pid: 6}, 6, "waiter")

		holdingCh := make(chan struct{})
		sched.Start(holder, func(self *sched.Thread) {
			m.Lock(self)
			close(holdingCh)
			// never unlocks; test cancels the waiter instead
			sched.SleepOn(self, sched.MkQueue()) // park forever, harmlessly
		})
		<-holdingCh

		sched.Start(waiter, func(self *sched.Thread) {
			result <- m.LockCancellable(self)
			sched.ExitSwitch(self)
		})

		for m.Holder() != holder {
		}
		sched.Cancel(waiter)

		select {
		case err := <-result:
			assert.Equal(t, defs.EINTR, err)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never cancelled out")
		}
	})
}
