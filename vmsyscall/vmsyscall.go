// Package vmsyscall implements brk/mmap/munmap on top of proc, vmmap,
// and mmobj, per spec.md §4.7–§4.8. It stops short of the final
// negative-errno syscall-return convention (vfssyscall's do_* layer
// owns that); Err_t here stays in the same positive-magnitude form
// used throughout the address-space packages.
package vmsyscall

import (
	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/proc"
	"github.com/sharduld1908/weenix-go/util"
	"github.com/sharduld1908/weenix-go/vmmap"
)

func pageRound(addr int) int {
	return util.Roundup(addr, defs.PageSize)
}

func pageCount(length int) int {
	return util.Roundup(length, defs.PageSize) / defs.PageSize
}

// DoBrk implements do_brk. addr == 0 returns the current break without
// modifying it. Shrinking below the heap vma's current end unmaps the
// excess; growing extends the heap vma in place when the new span is
// free, or maps a fresh private anonymous region contiguous with it.
func DoBrk(p *proc.Process, addr int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	if addr == 0 {
		return p.Brk, 0
	}
	if addr < p.StartBrk {
		return 0, defs.ENOMEM
	}

	startPN := defs.PN(p.StartBrk)
	curEndPN := defs.PN(pageRound(p.Brk))
	newEndPN := defs.PN(pageRound(addr))

	if newEndPN == curEndPN {
		p.Brk = addr
		return addr, 0
	}

	if newEndPN < curEndPN {
		if err := p.Vmmap.Remove(newEndPN, curEndPN-newEndPN); err != 0 {
			return 0, err
		}
		p.PageTable.UnmapRange(newEndPN, curEndPN-newEndPN)
		p.PageTable.FlushAll()
		p.Brk = addr
		return addr, 0
	}

	heap := p.Vmmap.Lookup(startPN)
	grow := newEndPN - curEndPN
	if heap != nil && heap.End == curEndPN && p.Vmmap.IsRangeEmpty(curEndPN, grow) {
		heap.End = newEndPN
		p.Brk = addr
		return addr, 0
	}

	if !p.Vmmap.IsRangeEmpty(curEndPN, grow) {
		return 0, defs.ENOMEM
	}
	_, err := p.Vmmap.Map(nil, curEndPN, grow, defs.PROT_READ|defs.PROT_WRITE,
		defs.MAP_PRIVATE, 0, vmmap.HiLo)
	if err != 0 {
		return 0, err
	}
	p.Brk = addr
	return addr, 0
}

// FileMapper supplies the vnode-backed side of do_mmap; vfssyscall
// implements it against a process's fd table so vmsyscall itself need
// not import vfs's File type.
type FileMapper interface {
	// Mmap validates fd for the requested prot/flags and returns the
	// mmobj.Object backing it (spec.md's "extract its vnode").
	Mmap(fd int, prot, flags int) (mmobj.Object, defs.Err_t)
}

// DoMmap implements do_mmap. addr/off must be page-aligned; len must
// be in (0, user-size]; exactly one of Shared/Private must be set;
// Fixed requires a non-zero addr. anon mappings (MAP_ANON) never
// consult fm.
func DoMmap(p *proc.Process, fm FileMapper, addr, length, prot, flags, fd, off int) (int, defs.Err_t) {
	defer p.Accnt.Finish(p.Accnt.Now())
	if length <= 0 || length > defs.UserMemHighPN*defs.PageSize {
		return 0, defs.EINVAL
	}
	if addr%defs.PageSize != 0 || off%defs.PageSize != 0 {
		return 0, defs.EINVAL
	}
	shared := flags&defs.MAP_SHARED != 0
	private := flags&defs.MAP_PRIVATE != 0
	if shared == private {
		return 0, defs.EINVAL
	}
	fixed := flags&defs.MAP_FIXED != 0
	if fixed && addr == 0 {
		return 0, defs.EINVAL
	}

	var obj mmobj.Object
	if flags&defs.MAP_ANON == 0 {
		o, err := fm.Mmap(fd, prot, flags)
		if err != 0 {
			return 0, err
		}
		obj = o
	}

	npages := pageCount(length)
	lopage := 0
	if fixed {
		lopage = defs.PN(addr)
	}
	vma, err := p.Vmmap.Map(obj, lopage, npages, prot, flags, off, vmmap.HiLo)
	if err != 0 {
		return 0, err
	}
	p.PageTable.FlushAll()
	return defs.PNToAddr(vma.Start), 0
}

// DoMunmap implements do_munmap.
func DoMunmap(p *proc.Process, addr, length int) defs.Err_t {
	defer p.Accnt.Finish(p.Accnt.Now())
	if addr%defs.PageSize != 0 || length <= 0 {
		return defs.EINVAL
	}
	npages := pageCount(length)
	if err := p.Vmmap.Remove(defs.PN(addr), npages); err != 0 {
		return err
	}
	p.PageTable.UnmapRange(defs.PN(addr), npages)
	p.PageTable.FlushAll()
	return 0
}
