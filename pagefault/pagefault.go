// Package pagefault implements the fault handler spec.md §4.5
// describes: vaddr -> vma -> page frame (with copy-on-write) -> page
// table entry. It takes the faulting process's address space and page
// table as explicit arguments rather than reaching for "the current
// process" itself, so it stays decoupled from sched/proc; the kernel
// package wires it to the currently running process at the trap site.
package pagefault

import (
	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/metrics"
	"github.com/sharduld1908/weenix-go/pagetable"
	"github.com/sharduld1908/weenix-go/vmmap"
)

// Handle resolves a fault at vaddr caused by cause (defs.PROT_READ,
// defs.PROT_WRITE, or defs.PROT_EXEC). On success it installs a page
// table entry and returns ok=true. On failure — no covering vma, a
// protection mismatch, or the pager itself failing — it returns
// ok=false; per spec.md §7 the caller must terminate the faulting
// process with status EFAULT. This core never lets a fault reach user
// mode unresolved.
func Handle(vm *vmmap.Vmmap, pt *pagetable.Table, vaddr int, cause int) (ok bool) {
	defer func() {
		if ok {
			metrics.PageFaultsTotal.Inc()
		} else {
			metrics.PageFaultsFailedTotal.Inc()
		}
	}()

	vfn := defs.PN(vaddr)
	vma := vm.Lookup(vfn)
	if vma == nil {
		return false
	}

	forwrite := cause&defs.PROT_WRITE != 0
	if forwrite {
		if vma.Prot&defs.PROT_WRITE == 0 {
			return false
		}
	} else if vma.Prot&defs.PROT_READ == 0 {
		return false
	}

	pagenum := vfn - vma.Start + vma.Off
	pf, err := vma.Obj.LookupPage(pagenum, forwrite)
	if err != 0 {
		return false
	}

	pt.Map(vfn, pagetable.PTE{
		Frame:    pf.Frame,
		Present:  true,
		Writable: forwrite,
		Dirty:    forwrite,
	})
	if forwrite {
		vma.Obj.DirtyPage(pf)
	}
	return true
}
