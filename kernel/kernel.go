// Package kernel wires together the boot sequence spec.md §1-§2
// describe: bring up the idle and init processes, mount the root
// ramfs and devfs namespaces, and hand control to the scheduler. The
// teacher's kernel package held only chentry, a standalone ELF
// entry-patching build tool with nothing to adapt (this core has no
// ELF loader, spec.md §1 Out of scope); the boot wiring below instead
// follows the teacher's main kernel-init style found across proc and
// vm: allocate the well-known processes, then fall into the
// scheduler.
package kernel

import (
	"github.com/sirupsen/logrus"

	"github.com/sharduld1908/weenix-go/caller"
	"github.com/sharduld1908/weenix-go/circbuf"
	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/devfs"
	"github.com/sharduld1908/weenix-go/pagefault"
	"github.com/sharduld1908/weenix-go/proc"
	"github.com/sharduld1908/weenix-go/ramfs"
	"github.com/sharduld1908/weenix-go/sched"
	"github.com/sharduld1908/weenix-go/vfssyscall"
)

// unresolvedFaults dedupes the call chains that lead to an unresolved
// page fault, so a process that repeatedly faults the same way (e.g.
// hammering an unmapped address in a loop before it is killed) logs
// its full backtrace only once.
var unresolvedFaults = &caller.Distinct_caller_t{Enabled: true}

// dmesgHook mirrors the teacher's in-memory kernel log ring: every
// logrus entry is also rendered into a fixed-size circbuf so it can be
// retrieved after the fact (Dmesg), the way a real kernel's dmesg
// buffer survives independent of whatever is attached to stdout.
type dmesgHook struct {
	buf circbuf.Circbuf_t
}

func newDmesgHook() *dmesgHook {
	h := &dmesgHook{}
	h.buf.Init(1 << 16)
	return h
}

func (h *dmesgHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *dmesgHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	h.buf.Write([]byte(line))
	return nil
}

var dmesg = newDmesgHook()

func init() {
	logrus.AddHook(dmesg)
}

// Dmesg returns a snapshot of the kernel log ring buffer's contents,
// oldest first, mirroring dmesg(1).
func Dmesg() []byte {
	return dmesg.buf.Snapshot()
}

// Kernel is a booted instance: the two well-known processes and the
// namespace they share.
type Kernel struct {
	Idle *proc.Process
	Init *proc.Process
	Root *ramfs.FS
}

// Boot constructs the idle and init processes, mounts devfs at /dev
// under a ramfs root, and installs that root as the VFS root every
// subsequent path lookup resolves against. It does not yet start the
// scheduler; call Run to do that.
func Boot() *Kernel {
	idle := proc.CreateIdle()

	rfs, root := ramfs.New()
	init := proc.CreateInit(root)

	_, devDir, _ := devfs.New("dev")
	if err := rfs.Mount(root, "dev", devDir); err != 0 {
		logrus.WithField("component", "kernel").WithField("err", err).Fatal("failed to mount devfs")
	}

	vfssyscall.SetRoot(root)

	logrus.WithField("component", "kernel").Info("boot: root and devfs mounted")
	return &Kernel{Idle: idle, Init: init, Root: rfs}
}

// Run starts the idle and init threads and hands control to the
// scheduler, blocking until body returns. body is init's post-fork
// entry point (see proc.DoFork's doc comment for why this core takes a
// body function rather than returning through a cloned register file);
// its return value becomes init's exit status. Run returns that status
// once body has returned and the idle thread has stopped; init itself
// is not reaped.
func Run(k *Kernel, body func(self *sched.Thread, init *proc.Process) int) int {
	done := make(chan int, 1)
	stopIdle := make(chan struct{})
	idleStopped := make(chan struct{})

	idleThread := k.Idle.NewThread("idle")
	sched.Start(idleThread, func(self *sched.Thread) {
		for {
			select {
			case <-stopIdle:
				close(idleStopped)
				return
			default:
			}
			sched.Yield(self)
		}
	})

	initThread := k.Init.NewThread("init")
	sched.Start(initThread, func(self *sched.Thread) {
		status := body(self, k.Init)
		done <- status
		proc.DoExit(k.Init, self, status)
	})

	sched.Boot()
	status := <-done
	close(stopIdle)
	<-idleStopped
	return status
}

// HandleFault resolves a page fault for p at vaddr, caused by cause
// (defs.PROT_READ/WRITE/EXEC). Per spec.md §7, a fault the pager
// cannot resolve — an unmapped address, a protection violation, or a
// failing backing store — kills the faulting process with EFAULT
// rather than propagating an error return, since there is no
// recoverable return path from a hardware trap.
func HandleFault(self *sched.Thread, p *proc.Process, vaddr, cause int) {
	if pagefault.Handle(p.Vmmap, p.PageTable, vaddr, cause) {
		return
	}
	entry := logrus.WithField("component", "kernel").WithFields(logrus.Fields{
		"pid": p.Pid, "vaddr": vaddr, "cause": cause,
	})
	if fresh, stack := unresolvedFaults.Distinct(); fresh {
		entry = entry.WithField("stack", stack)
	}
	entry.Warn("unresolved page fault, killing process")
	proc.DoExit(p, self, int(defs.EFAULT))
}
