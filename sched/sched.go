// Package sched implements the single run queue and IPL gate spec.md
// §4.1 describes, adapted from the teacher's proc/sched scheduling
// code. There is no hardware CPU to context-switch here: each kernel
// thread is one goroutine, and "holding the CPU" is modeled as holding
// a one-shot resume token on that goroutine's channel. sched_switch's
// pop-next/hand-off/park-self sequence is the only place a token ever
// moves, which is exactly the discipline the IPL gate protects in the
// original kernel.
package sched

import (
	"runtime"
	"sync"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/sharduld1908/weenix-go/defs"
)

// State enumerates a thread's scheduling state.
type State int

const (
	NoState State = iota
	Run
	Sleep
	SleepCancellable
	Exited
)

func (s State) String() string {
	switch s {
	case NoState:
		return "NoState"
	case Run:
		return "Run"
	case Sleep:
		return "Sleep"
	case SleepCancellable:
		return "SleepCancellable"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// ProcessHandle is the opaque view sched needs of a thread's owning
// process. proc.Process implements it; sched never imports proc, which
// is what keeps proc -> sched a one-way dependency.
type ProcessHandle interface {
	PID() defs.Pid_t
}

// Thread is one schedulable kernel thread. A thread is on at most one
// queue at a time: either the run queue (Wchan == nil, State == Run)
// or exactly one wait queue (Wchan == that queue).
type Thread struct {
	Name      string
	Tid       defs.Tid_t
	Proc      ProcessHandle
	state     State
	wchan     *Queue
	cancelled bool
	resume    chan struct{}
	Retval    int
}

// NewThread allocates a fresh, not-yet-runnable thread bound to proc.
func NewThread(proc ProcessHandle, tid defs.Tid_t, name string) *Thread {
	return &Thread{
		Name:   name,
		Tid:    tid,
		Proc:   proc,
		state:  NoState,
		resume: make(chan struct{}, 1),
	}
}

// State reports the thread's current scheduling state.
func (t *Thread) State() State { return t.state }

// Cancelled reports whether the thread's cancel flag is set (read by a
// thread after waking from a cancellable sleep to decide whether it
// was woken normally or cancelled out).
func (t *Thread) Cancelled() bool { return t.cancelled }

// Queue is a FIFO wait queue of parked threads.
type Queue struct {
	threads []*Thread
}

// MkQueue returns a new empty wait queue.
func MkQueue() *Queue { return &Queue{} }

func (q *Queue) push(t *Thread) {
	q.threads = append(q.threads, t)
}

func (q *Queue) popFront() (*Thread, bool) {
	if len(q.threads) == 0 {
		return nil, false
	}
	t := q.threads[0]
	q.threads = q.threads[1:]
	return t, true
}

func (q *Queue) remove(t *Thread) bool {
	for i, cand := range q.threads {
		if cand == t {
			q.threads = append(q.threads[:i], q.threads[i+1:]...)
			return true
		}
	}
	return false
}

// Empty reports whether the queue currently has no waiters.
func (q *Queue) Empty() bool { return len(q.threads) == 0 }

var (
	iplMu     deadlock.Mutex
	schedCond = sync.NewCond(&iplMu)
	runq      = &Queue{}

	curthr  *Thread
	curproc ProcessHandle
)

// Current returns the thread currently holding the CPU token.
func Current() *Thread {
	iplMu.Lock()
	defer iplMu.Unlock()
	return curthr
}

// CurrentProc returns the process owning the thread currently holding
// the CPU token.
func CurrentProc() ProcessHandle {
	iplMu.Lock()
	defer iplMu.Unlock()
	return curproc
}

// MakeRunnable moves t onto the run queue. Mirrors sched_make_runnable:
// t must not already be enqueued anywhere.
func MakeRunnable(t *Thread) {
	iplMu.Lock()
	if t.state == Run {
		iplMu.Unlock()
		panic("sched: MakeRunnable of already-runnable thread")
	}
	t.state = Run
	t.wchan = nil
	t.cancelled = false
	runq.push(t)
	schedCond.Signal()
	iplMu.Unlock()
}

// schedSwitchLocked implements sched_switch's core: pop the next
// runnable thread (waiting for one to appear if the run queue is
// empty), install it as curthr/curproc, and hand it the CPU token. It
// must be called with iplMu held, and it releases the lock before
// returning. When the popped thread is not self, self parks on its own
// resume channel until some future switch hands the token back to it;
// Switch only returns once self is curthr again.
func schedSwitchLocked(self *Thread) {
	for len(runq.threads) == 0 {
		schedCond.Wait()
	}
	next, _ := runq.popFront()
	curthr = next
	curproc = next.Proc
	switchesTotal.Inc()
	if next == self {
		iplMu.Unlock()
		return
	}
	iplMu.Unlock()
	next.resume <- struct{}{}
	<-self.resume
}

// Switch voluntarily yields the CPU: self must already have been
// placed on some queue (the run queue via MakeRunnable, or a wait
// queue via SleepOn/SleepCancellableOn) before calling this. It
// returns once self is scheduled again.
func Switch(self *Thread) {
	iplMu.Lock()
	schedSwitchLocked(self)
}

// ExitSwitch hands the CPU to the next runnable thread and never
// returns to self; it is the last thing kthread_exit does before its
// goroutine unwinds for good.
func ExitSwitch(self *Thread) {
	iplMu.Lock()
	self.state = Exited
	for len(runq.threads) == 0 {
		schedCond.Wait()
	}
	next, _ := runq.popFront()
	curthr = next
	curproc = next.Proc
	switchesTotal.Inc()
	iplMu.Unlock()
	if next != self {
		next.resume <- struct{}{}
	}
	runtime.Goexit()
}

// Boot hands the CPU token to the next runnable thread. Boot context
// is not itself a schedulable thread, so unlike Switch it never parks
// waiting for the token back: kernel boot code calls this exactly
// once, to start the idle thread, and never regains control.
func Boot() {
	iplMu.Lock()
	for len(runq.threads) == 0 {
		schedCond.Wait()
	}
	next, _ := runq.popFront()
	curthr = next
	curproc = next.Proc
	switchesTotal.Inc()
	iplMu.Unlock()
	next.resume <- struct{}{}
}

// Start launches t's goroutine body and enqueues t for its first run.
// The body does not begin executing until the scheduler hands t the
// CPU token for the first time.
func Start(t *Thread, body func(*Thread)) {
	go func() {
		<-t.resume
		body(t)
	}()
	MakeRunnable(t)
}

// SleepOn parks self on q until woken by WakeupOn/BroadcastOn. It
// always blocks until woken; there is no cancellation path.
func SleepOn(self *Thread, q *Queue) {
	iplMu.Lock()
	self.state = Sleep
	self.wchan = q
	q.push(self)
	schedSwitchLocked(self)
}

// SleepCancellableOn parks self on q, but returns EINTR immediately
// (without sleeping) if self was already cancelled, and returns EINTR
// after waking if Cancel(self) fired while parked. A normal wakeup
// (WakeupOn/BroadcastOn) returns 0.
func SleepCancellableOn(self *Thread, q *Queue) defs.Err_t {
	iplMu.Lock()
	if self.cancelled {
		iplMu.Unlock()
		return defs.EINTR
	}
	self.state = SleepCancellable
	self.wchan = q
	q.push(self)
	schedSwitchLocked(self)
	if self.cancelled {
		self.cancelled = false
		return defs.EINTR
	}
	return 0
}

// WakeupOn wakes a single thread parked on q, if any, moving it to the
// run queue, and returns it.
func WakeupOn(q *Queue) *Thread {
	iplMu.Lock()
	defer iplMu.Unlock()
	t, ok := q.popFront()
	if !ok {
		return nil
	}
	t.state = Run
	t.wchan = nil
	runq.push(t)
	schedCond.Signal()
	wakeupsTotal.Inc()
	return t
}

// BroadcastOn wakes every thread parked on q, moving each to the run
// queue, and returns how many were woken.
func BroadcastOn(q *Queue) int {
	iplMu.Lock()
	defer iplMu.Unlock()
	n := 0
	for {
		t, ok := q.popFront()
		if !ok {
			break
		}
		t.state = Run
		t.wchan = nil
		runq.push(t)
		n++
	}
	if n > 0 {
		wakeupsTotal.Add(float64(n))
		schedCond.Broadcast()
	}
	return n
}

// Cancel sets t's cancel flag. If t is currently in a cancellable
// sleep it is pulled off its wait queue and made runnable immediately,
// so its SleepCancellableOn call returns EINTR as soon as it is next
// scheduled; otherwise the flag is simply recorded for the thread to
// observe the next time it attempts a cancellable sleep.
func Cancel(t *Thread) {
	iplMu.Lock()
	defer iplMu.Unlock()
	t.cancelled = true
	if t.state == SleepCancellable && t.wchan != nil {
		t.wchan.remove(t)
		t.wchan = nil
		t.state = Run
		runq.push(t)
		schedCond.Signal()
		logrus.WithField("component", "sched").WithField("tid", t.Tid).Debug("cancelled out of sleep")
	}
}

// Yield re-enqueues self at the back of the run queue and switches
// away, returning once self reaches the front again. Used by the idle
// thread's HLT-equivalent loop and by any thread that wants to give
// other runnable threads a turn without actually blocking on a queue.
func Yield(self *Thread) {
	iplMu.Lock()
	self.state = Run
	self.wchan = nil
	runq.push(self)
	schedSwitchLocked(self)
}

// RunQueueLen reports the number of threads currently runnable,
// excluding whichever thread currently holds the CPU token. Diagnostic
// only.
func RunQueueLen() int {
	iplMu.Lock()
	defer iplMu.Unlock()
	return len(runq.threads)
}
