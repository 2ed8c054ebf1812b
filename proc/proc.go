// Package proc implements process creation, fork, exit, and waitpid
// per spec.md §4.3, adapted from the teacher's proc package's
// pid-table and parent/child bookkeeping style. sched owns Thread and
// never imports proc; Process satisfies sched.ProcessHandle so the
// scheduler can report which process a running thread belongs to
// without a dependency cycle.
package proc

import (
	"github.com/sirupsen/logrus"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/sharduld1908/weenix-go/accnt"
	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/limits"
	"github.com/sharduld1908/weenix-go/metrics"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/pagetable"
	"github.com/sharduld1908/weenix-go/sched"
	"github.com/sharduld1908/weenix-go/vfs"
	"github.com/sharduld1908/weenix-go/vmmap"
)

// State is a process's lifecycle state.
type State int

const (
	Running State = iota
	Dead
)

// Process owns a single thread (spec.md §1 Non-goals: multi-threaded
// processes are out of scope), its address space, fd table, and
// position in the parent/child tree.
type Process struct {
	Pid        defs.Pid_t
	Name       string
	ExitStatus int
	State      State
	Parent     *Process
	Children   []*Process
	WaitQ      *sched.Queue
	PageTable  *pagetable.Table
	Vmmap      *vmmap.Vmmap
	Cwd        *vfs.Vnode
	Fds        []*vfs.File
	StartBrk   int
	Brk        int
	Threads    []*sched.Thread
	Accnt      *accnt.Accnt_t
}

// PID implements sched.ProcessHandle.
func (p *Process) PID() defs.Pid_t { return p.Pid }

// InitBrk establishes the process's initial heap break. There is no
// ELF loader in this core (spec.md §1 Out of scope), so whatever sets
// up the process's initial image — the kernel boot sequence, or a
// test — calls this once before the process runs.
func (p *Process) InitBrk(addr int) {
	p.StartBrk = addr
	p.Brk = addr
}

// NewThread allocates a thread owned by p. Since a process has at
// most one thread, tid is simply derived from pid.
func (p *Process) NewThread(name string) *sched.Thread {
	th := sched.NewThread(p, defs.Tid_t(p.Pid), name)
	p.Threads = append(p.Threads, th)
	return th
}

var (
	procListMu deadlock.Mutex
	procList   = map[defs.Pid_t]*Process{}
	initProc   *Process
	nextPid    = defs.PidInit + 1
)

func newProcess(pid defs.Pid_t, name string, parent *Process) *Process {
	p := &Process{
		Pid:       pid,
		Name:      name,
		State:     Running,
		Parent:    parent,
		WaitQ:     sched.MkQueue(),
		PageTable: pagetable.NewTable(),
		Vmmap:     vmmap.New(),
		Fds:       make([]*vfs.File, defs.NFILES),
		Accnt:     &accnt.Accnt_t{},
	}
	if parent != nil {
		parent.Children = append(parent.Children, p)
	}
	return p
}

// CreateIdle creates the pid-0 idle process. Called exactly once, by
// kernel boot.
func CreateIdle() *Process {
	procListMu.Lock()
	defer procListMu.Unlock()
	p := newProcess(defs.PidIdle, "idle", nil)
	procList[p.Pid] = p
	metrics.ProcessesLive.Inc()
	return p
}

// CreateInit creates the pid-1 init process, rooted at root. Called
// exactly once, by kernel boot, after CreateIdle.
func CreateInit(root *vfs.Vnode) *Process {
	procListMu.Lock()
	defer procListMu.Unlock()
	p := newProcess(defs.PidInit, "init", nil)
	p.Cwd = root
	root.Ref()
	procList[p.Pid] = p
	initProc = p
	metrics.ProcessesLive.Inc()
	return p
}

// allocPidLocked performs the rotating pid search spec.md §4.3
// describes: worst case O(n^2) over live processes, O(n) amortized
// when the pid space is sparse. Must be called with procListMu held.
func allocPidLocked() (defs.Pid_t, bool) {
	start := nextPid
	for {
		candidate := nextPid
		nextPid++
		if nextPid >= defs.PROC_MAX_COUNT {
			nextPid = defs.PidInit + 1
		}
		if candidate > defs.PidInit {
			if _, exists := procList[candidate]; !exists {
				return candidate, true
			}
		}
		if nextPid == start {
			return 0, false
		}
	}
}

// Create allocates a new process named name, parented to parent, with
// cwd inherited (a fresh reference) from parent's cwd.
func Create(name string, parent *Process) (*Process, defs.Err_t) {
	procListMu.Lock()
	defer procListMu.Unlock()
	if !limits.Syslimit.Sysprocs.Take() {
		return nil, defs.ENOMEM
	}
	pid, ok := allocPidLocked()
	if !ok {
		limits.Syslimit.Sysprocs.Give()
		return nil, defs.ENOMEM
	}
	p := newProcess(pid, name, parent)
	if parent != nil && parent.Cwd != nil {
		parent.Cwd.Ref()
		p.Cwd = parent.Cwd
	}
	procList[pid] = p
	metrics.ProcessesLive.Inc()
	return p, 0
}

// Lookup returns the live process with the given pid, if any.
func Lookup(pid defs.Pid_t) (*Process, bool) {
	procListMu.Lock()
	defer procListMu.Unlock()
	p, ok := procList[pid]
	return p, ok
}

// DoFork implements spec.md §4.3's do_fork. There is no ELF loader or
// hardware register file in this core (spec.md §1 Out of scope), so
// "clone the current thread's context, same registers, return value
// forced to 0 in the child" has no literal Go equivalent; instead the
// caller supplies body, the function the child's single new thread
// runs from its very first scheduling, which stands in for "the
// child's register state after fork returns 0." The parent is simply
// the calling goroutine continuing past this call, observing the
// child's pid as an ordinary return value.
func DoFork(parent *Process, name string, body func(self *sched.Thread, child *Process)) (*Process, defs.Err_t) {
	defer parent.Accnt.Finish(parent.Accnt.Now())
	if parent.State != Running {
		return nil, defs.EINVAL
	}
	child, err := Create(name, parent)
	if err != 0 {
		return nil, err
	}

	cloneAddressSpace(parent, child)

	for i, f := range parent.Fds {
		if f != nil {
			f.Ref()
			child.Fds[i] = f
		}
	}

	child.StartBrk = parent.StartBrk
	child.Brk = parent.Brk

	th := child.NewThread(name)
	sched.Start(th, func(self *sched.Thread) { body(self, child) })

	logrus.WithField("component", "proc").WithFields(logrus.Fields{
		"parent": parent.Pid, "child": child.Pid,
	}).Debug("forked")
	return child, 0
}

// cloneAddressSpace implements the CoW half of do_fork: clone the
// vmmap, push fresh shadow objects over every Private mapping (one for
// the child, one re-rooting the parent), bump refcounts for Shared
// mappings, then unmap the parent's entire userspace range and flush
// its TLB so both sides rebuild page-table entries (and resolve CoW)
// lazily on next touch.
func cloneAddressSpace(parent, child *Process) {
	child.Vmmap = parent.Vmmap.Clone()
	parentAreas := parent.Vmmap.Areas()
	childAreas := child.Vmmap.Areas()

	for i, pvma := range parentAreas {
		cvma := childAreas[i]
		shared := pvma.Flags&defs.MAP_SHARED != 0

		if shared {
			pvma.Obj.Ref()
			cvma.Obj = pvma.Obj
			bottom := mmobj.BottomOf(pvma.Obj)
			bottom.AddVma(cvma)
			logrus.WithField("component", "proc").WithFields(logrus.Fields{
				"parent": parent.Pid, "child": child.Pid, "mappers": len(bottom.Vmas()),
			}).Debug("shared mapping now has this many vma mappers")
			continue
		}

		bottom := mmobj.BottomOf(pvma.Obj)
		bottom.RemoveVma(pvma)

		pvma.Obj.Ref() // referenced by the child's new shadow
		pvma.Obj.Ref() // referenced by the parent's new shadow

		childShadow := mmobj.NewShadow(pvma.Obj, bottom)
		parentShadow := mmobj.NewShadow(pvma.Obj, bottom)

		cvma.Obj = childShadow
		pvma.Obj = parentShadow

		bottom.AddVma(cvma)
		bottom.AddVma(pvma)
	}

	parent.PageTable.UnmapRange(defs.UserMemLowPN, defs.UserMemHighPN-defs.UserMemLowPN)
	parent.PageTable.FlushAll()
}

// DoExit implements do_exit -> kthread_exit -> proc_cleanup. It never
// returns: the final step hands the CPU to another runnable thread.
func DoExit(p *Process, self *sched.Thread, status int) {
	inttime := p.Accnt.Now()
	procListMu.Lock()
	if p.Parent != nil {
		sched.WakeupOn(p.Parent.WaitQ)
	}
	for _, c := range p.Children {
		c.Parent = initProc
		initProc.Children = append(initProc.Children, c)
	}
	p.Children = nil
	p.ExitStatus = status
	p.State = Dead
	procListMu.Unlock()

	for i, f := range p.Fds {
		if f != nil {
			f.Put()
			p.Fds[i] = nil
		}
	}
	if p.Cwd != nil {
		p.Cwd.Put()
		p.Cwd = nil
	}
	for _, v := range p.Vmmap.Areas() {
		mmobj.BottomOf(v.Obj).RemoveVma(v)
		v.Obj.Put()
	}
	p.Vmmap = vmmap.New()
	p.Accnt.Finish(inttime)

	logrus.WithField("component", "proc").WithField("pid", p.Pid).Debug("exited")
	sched.ExitSwitch(self)
}

// DoWaitpid implements spec.md §4.3's do_waitpid. pid == -1 reaps any
// dead child; pid > 0 waits for that specific child; any other pid is
// EINVAL. Returns the reaped child's pid, exit status, and accumulated
// rusage (spec.md's rusage-on-waitpid supplement).
func DoWaitpid(p *Process, self *sched.Thread, pid defs.Pid_t, options int) (defs.Pid_t, int, accnt.Rusage_t, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	if options != 0 {
		return 0, 0, accnt.Rusage_t{}, defs.EINVAL
	}
	if pid != -1 && pid <= 0 {
		return 0, 0, accnt.Rusage_t{}, defs.EINVAL
	}

	for {
		procListMu.Lock()
		if len(p.Children) == 0 {
			procListMu.Unlock()
			return 0, 0, accnt.Rusage_t{}, defs.ECHILD
		}

		idx := -1
		if pid == -1 {
			for i, c := range p.Children {
				if c.State == Dead {
					idx = i
					break
				}
			}
		} else {
			found := false
			for i, c := range p.Children {
				if c.Pid == pid {
					found = true
					if c.State == Dead {
						idx = i
					}
					break
				}
			}
			if !found {
				procListMu.Unlock()
				return 0, 0, accnt.Rusage_t{}, defs.ECHILD
			}
		}

		if idx >= 0 {
			c := p.Children[idx]
			ret, st, ru := c.Pid, c.ExitStatus, c.Accnt.Fetch()
			p.Accnt.Add(c.Accnt)
			p.Children = append(p.Children[:idx], p.Children[idx+1:]...)
			procListMu.Unlock()
			reap(c)
			return ret, st, ru, 0
		}

		procListMu.Unlock()
		since := p.Accnt.Now()
		sched.SleepOn(self, p.WaitQ)
		p.Accnt.Sleep_time(since)
	}
}

func reap(c *Process) {
	procListMu.Lock()
	delete(procList, c.Pid)
	procListMu.Unlock()
	limits.Syslimit.Sysprocs.Give()
	metrics.ProcessesLive.Dec()
}

// Kill implements proc_kill: killing self is equivalent to do_exit;
// killing another process cancels its (single) thread, relying on
// that thread's own dispatch loop to observe the cancellation and
// call DoExit.
func Kill(target, self *Process, selfThread *sched.Thread, status int) {
	if target == self {
		DoExit(self, selfThread, status)
		return
	}
	for _, th := range target.Threads {
		sched.Cancel(th)
	}
}

// KillAll implements proc_kill_all: cancels every process other than
// pids 0, 1, 2, and self.
func KillAll(self *Process) {
	procListMu.Lock()
	var targets []*Process
	for pid, p := range procList {
		if pid == 0 || pid == 1 || pid == 2 || p == self {
			continue
		}
		targets = append(targets, p)
	}
	procListMu.Unlock()
	for _, p := range targets {
		for _, th := range p.Threads {
			sched.Cancel(th)
		}
	}
}
