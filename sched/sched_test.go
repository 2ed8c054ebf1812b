package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharduld1908/weenix-go/defs"
)

type fakeProc struct{ pid defs.Pid_t }

func (f *fakeProc) PID() defs.Pid_t { return f.pid }

// resetForTest clears global scheduler state between tests. Safe only
// because every test's idle thread (see withIdle) fully exits and
// stops touching the run queue before the test returns.
func resetForTest() {
	iplMu.Lock()
	runq = &Queue{}
	curthr = nil
	curproc = nil
	iplMu.Unlock()
}

// withIdle starts a perpetual idle thread (analogous to the kernel's
// pid-0 HLT loop) so the run queue is never empty while other test
// threads call ExitSwitch, then runs fn, then stops the idle thread
// and waits for its goroutine to fully exit before returning.
func withIdle(t *testing.T, fn func()) {
	t.Helper()
	resetForTest()

	stopCh := make(chan struct{})
	stoppedCh := make(chan struct{})
	idle := NewThread(&fakeProc{pid: defs.PidIdle}, 0, "idle")
	Start(idle, func(self *Thread) {
		for {
			select {
			case <-stopCh:
				close(stoppedCh)
				return
			default:
			}
			Yield(self)
		}
	})
	Boot()

	fn()

	close(stopCh)
	select {
	case <-stoppedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("idle thread never stopped")
	}
}

func TestMakeRunnableThenSwitchDeliversToken(t *testing.T) {
	withIdle(t, func() {
		done := make(chan struct{})
		var ran bool
		worker := NewThread(&fakeProc{pid: 1}, 1, "worker")
		Start(worker, func(self *Thread) {
			ran = true
			assert.Equal(t, self, Current())
			close(done)
			ExitSwitch(self)
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker never ran")
		}
		assert.True(t, ran)
	})
}

func TestSleepOnAndWakeupOn(t *testing.T) {
	withIdle(t, func() {
		q := MkQueue()
		woke := make(chan struct{})

		sleeper := NewThread(&fakeProc{pid: 2}, 2, "sleeper")
		waker := NewThread(&fakeProc{pid: 3}, 3, "waker")

		Start(sleeper, func(self *Thread) {
			SleepOn(self, q)
			close(woke)
			ExitSwitch(self)
		})
		Start(waker, func(self *Thread) {
			for q.Empty() {
				Yield(self)
			}
			woken := WakeupOn(q)
			require.NotNil(t, woken)
			assert.Equal(t, sleeper, woken)
			ExitSwitch(self)
		})

		select {
		case <-woke:
		case <-time.After(2 * time.Second):
			t.Fatal("sleeper never woke")
		}
	})
}

func TestSleepCancellableOnReturnsEINTRWhenCancelled(t *testing.T) {
	withIdle(t, func() {
		q := MkQueue()
		result := make(chan defs.Err_t, 1)

		sleeper := NewThread(&fakeProc{pid: 4}, 4, "sleeper")
		canceller := NewThread(&fakeProc{pid: 5}, 5, "canceller")

		Start(sleeper, func(self *Thread) {
			result <- SleepCancellableOn(self, q)
			ExitSwitch(self)
		})
		Start(canceller, func(self *Thread) {
			for q.Empty() {
				Yield(self)
			}
			Cancel(sleeper)
			ExitSwitch(self)
		})

		select {
		case err := <-result:
			assert.Equal(t, defs.EINTR, err)
		case <-time.After(2 * time.Second):
			t.Fatal("sleeper never woke")
		}
	})
}

func TestSleepCancellableOnReturnsZeroOnNormalWakeup(t *testing.T) {
	withIdle(t, func() {
		q := MkQueue()
		result := make(chan defs.Err_t, 1)

		sleeper := NewThread(&fakeProc{pid: 6}, 6, "sleeper")
		waker := NewThread(&fakeProc{pid: 7}, 7, "waker")

		Start(sleeper, func(self *Thread) {
			result <- SleepCancellableOn(self, q)
			ExitSwitch(self)
		})
		Start(waker, func(self *Thread) {
			for q.Empty() {
				Yield(self)
			}
			WakeupOn(q)
			ExitSwitch(self)
		})

		select {
		case err := <-result:
			assert.Equal(t, defs.Err_t(0), err)
		case <-time.After(2 * time.Second):
			t.Fatal("sleeper never woke")
		}
	})
}

func TestCancelBeforeSleepReturnsEINTRImmediately(t *testing.T) {
	withIdle(t, func() {
		q := MkQueue()
		result := make(chan defs.Err_t, 1)

		self := NewThread(&fakeProc{pid: 8}, 8, "t")
		Start(self, func(th *Thread) {
			Cancel(th) // sets the cancel flag before any sleep is attempted
			result <- SleepCancellableOn(th, q)
			ExitSwitch(th)
		})

		select {
		case err := <-result:
			assert.Equal(t, defs.EINTR, err)
			assert.True(t, q.Empty())
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	})
}

func TestBroadcastOnWakesEveryWaiter(t *testing.T) {
	withIdle(t, func() {
		q := MkQueue()
		const n = 4
		woke := make(chan defs.Tid_t, n)

		for i := 0; i < n; i++ {
			th := NewThread(&fakeProc{pid: defs.Pid_t(10 + i)}, defs.Tid_t(10+i), "sleeper")
			Start(th, func(self *Thread) {
				SleepOn(self, q)
				woke <- self.Tid
				ExitSwitch(self)
			})
		}

		broadcaster := NewThread(&fakeProc{pid: 99}, 99, "broadcaster")
		Start(broadcaster, func(self *Thread) {
			for {
				iplMu.Lock()
				qlen := len(q.threads)
				iplMu.Unlock()
				if qlen >= n {
					break
				}
				Yield(self)
			}
			woken := BroadcastOn(q)
			assert.Equal(t, n, woken)
			ExitSwitch(self)
		})

		seen := map[defs.Tid_t]bool{}
		for i := 0; i < n; i++ {
			select {
			case tid := <-woke:
				seen[tid] = true
			case <-time.After(2 * time.Second):
				t.Fatalf("only %d/%d threads woke", i, n)
			}
		}
		assert.Len(t, seen, n)
	})
}

func TestMakeRunnableOfAlreadyRunnableThreadPanics(t *testing.T) {
	withIdle(t, func() {
		done := make(chan struct{})
		th := NewThread(&fakeProc{pid: 42}, 42, "t")
		Start(th, func(self *Thread) {
			defer close(done)
			assert.Panics(t, func() {
				MakeRunnable(self)
			})
			ExitSwitch(self)
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	})
}

func TestQueueFIFOOrder(t *testing.T) {
	q := MkQueue()
	a := NewThread(nil, 1, "a")
	b := NewThread(nil, 2, "b")
	c := NewThread(nil, 3, "c")
	q.push(a)
	q.push(b)
	q.push(c)

	got, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, a, got)

	assert.True(t, q.remove(c))
	got, ok = q.popFront()
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok = q.popFront()
	assert.False(t, ok)
}
