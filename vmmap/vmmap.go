// Package vmmap implements a process's address space: an ordered,
// non-overlapping list of virtual memory areas, per spec.md §4.6. Like
// mmobj, this has no direct analog in the teacher kernel (which relies
// on the host OS's mmap); the slice-backed, mutex-guarded collection
// with linear-scan lookup follows the spec algorithm directly, in the
// same plain-struct-plus-mutex style the rest of this codebase uses
// for every other shared collection (hashtable, pagetable, pageframe).
package vmmap

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
)

// Dir selects the scan direction for FindRange.
type Dir int

const (
	HiLo Dir = iota
	LoHi
)

// Vma is one contiguous, homogeneous region of virtual address space,
// expressed in page-frame numbers.
type Vma struct {
	Start, End int // [Start, End) in page numbers
	Off        int // page-number offset into Obj
	Prot       int // defs.PROT_* bits
	Flags      int // defs.MAP_* bits
	Obj        mmobj.Object
}

func (v *Vma) len() int { return v.End - v.Start }

// Vmmap is a process's ordered collection of vmareas.
type Vmmap struct {
	mu    deadlock.Mutex
	areas []*Vma
}

// New returns an empty address space.
func New() *Vmmap { return &Vmmap{} }

// Areas returns the vmareas in start order; callers must not mutate
// the returned slice.
func (m *Vmmap) Areas() []*Vma {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Vma, len(m.areas))
	copy(out, m.areas)
	return out
}

// FindRange performs a first-fit scan for npages free pages within
// [USER_MEM_LOW_PN, USER_MEM_HIGH_PN). HiLo scans from the top down,
// returning the highest fitting range; LoHi is the symmetric opposite
// (unused by this core's syscalls but implemented for completeness). Returns -1
// if no such range exists.
func (m *Vmmap) FindRange(npages int, dir Dir) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findRange(npages, dir)
}

func (m *Vmmap) findRange(npages int, dir Dir) int {
	lo, hi := defs.UserMemLowPN, defs.UserMemHighPN
	if dir == HiLo {
		end := hi
		for i := len(m.areas) - 1; i >= -1; i-- {
			var start int
			if i == -1 {
				start = lo
			} else {
				start = m.areas[i].End
			}
			if end-start >= npages {
				return end - npages
			}
			if i >= 0 {
				end = m.areas[i].Start
			}
		}
		return -1
	}
	start := lo
	for i := 0; i <= len(m.areas); i++ {
		var end int
		if i == len(m.areas) {
			end = hi
		} else {
			end = m.areas[i].Start
		}
		if end-start >= npages {
			return start
		}
		if i < len(m.areas) {
			start = m.areas[i].End
		}
	}
	return -1
}

// Lookup returns the vma containing page vfn, or nil.
func (m *Vmmap) Lookup(vfn int) *Vma {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(vfn)
}

func (m *Vmmap) lookup(vfn int) *Vma {
	for _, v := range m.areas {
		if vfn >= v.Start && vfn < v.End {
			return v
		}
	}
	return nil
}

// IsRangeEmpty reports whether no vma intersects
// [startvfn, startvfn+npages).
func (m *Vmmap) IsRangeEmpty(startvfn, npages int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRangeEmpty(startvfn, npages)
}

func (m *Vmmap) isRangeEmpty(startvfn, npages int) bool {
	end := startvfn + npages
	for _, v := range m.areas {
		if v.Start < end && startvfn < v.End {
			return false
		}
	}
	return true
}

// Insert places newvma in start order. Preconditions: newvma.Start <
// newvma.End, and the range lies within user bounds.
func (m *Vmmap) Insert(newvma *Vma) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(newvma)
}

func (m *Vmmap) insert(newvma *Vma) defs.Err_t {
	if newvma.Start >= newvma.End {
		return defs.EINVAL
	}
	if newvma.Start < defs.UserMemLowPN || newvma.End > defs.UserMemHighPN {
		return defs.EINVAL
	}
	for i, v := range m.areas {
		if v.Start >= newvma.End {
			m.areas = append(m.areas, nil)
			copy(m.areas[i+1:], m.areas[i:])
			m.areas[i] = newvma
			return 0
		}
	}
	m.areas = append(m.areas, newvma)
	return 0
}

func bottomOf(o mmobj.Object) mmobj.Object {
	if sh, ok := o.(*mmobj.Shadow); ok {
		return sh.Bottom()
	}
	return o
}

// Map builds a new vma covering npages pages, backed by obj (an
// anonymous object is allocated if obj is nil), and inserts it. If
// lopage is 0, a free range is located via FindRange; otherwise any
// existing overlapping range is first punched out via Remove. When
// Flags has MAP_PRIVATE, a fresh shadow object is pushed on top of obj
// so writes are copy-on-write.
func (m *Vmmap) Map(obj mmobj.Object, lopage, npages, prot, flags, off int, dir Dir) (*Vma, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if npages <= 0 {
		return nil, defs.EINVAL
	}
	shared := flags&defs.MAP_SHARED != 0
	private := flags&defs.MAP_PRIVATE != 0
	if shared == private {
		return nil, defs.EINVAL
	}
	if lopage != 0 && (lopage < defs.UserMemLowPN || lopage+npages > defs.UserMemHighPN) {
		return nil, defs.EINVAL
	}

	if lopage == 0 {
		lopage = m.findRange(npages, dir)
		if lopage < 0 {
			return nil, defs.ENOMEM
		}
	} else if !m.isRangeEmpty(lopage, npages) {
		if err := m.remove(lopage, npages); err != 0 {
			return nil, err
		}
	}

	effective := obj
	if effective == nil {
		effective = mmobj.NewAnon()
	}
	bottom := bottomOf(effective)

	vma := &Vma{Start: lopage, End: lopage + npages, Off: off, Prot: prot, Flags: flags}
	bottom.AddVma(vma)

	if private {
		vma.Obj = mmobj.NewShadow(effective, bottom)
	} else {
		vma.Obj = effective
	}

	if err := m.insert(vma); err != 0 {
		bottom.RemoveVma(vma)
		return nil, err
	}
	return vma, 0
}

// Remove unmaps [lopage, lopage+npages), splitting, shrinking, or
// dropping each overlapping vma per spec.md §4.6.
func (m *Vmmap) Remove(lopage, npages int) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(lopage, npages)
}

func (m *Vmmap) remove(lopage, npages int) defs.Err_t {
	end := lopage + npages
	var kept []*Vma
	for _, v := range m.areas {
		if v.End <= lopage || v.Start >= end {
			kept = append(kept, v)
			continue
		}
		switch {
		case v.Start < lopage && v.End > end: // contained: split in two
			left := &Vma{Start: v.Start, End: lopage, Off: v.Off, Prot: v.Prot, Flags: v.Flags, Obj: v.Obj}
			right := &Vma{Start: end, End: v.End, Off: v.Off + (end - v.Start), Prot: v.Prot, Flags: v.Flags, Obj: v.Obj}
			bottom := bottomOf(v.Obj)
			bottom.RemoveVma(v)
			v.Obj.Ref()
			if left.len() > 0 {
				kept = append(kept, left)
				bottom.AddVma(left)
			} else {
				v.Obj.Put()
			}
			if right.len() > 0 {
				kept = append(kept, right)
				bottom.AddVma(right)
			} else {
				v.Obj.Put()
			}
		case v.Start < lopage: // right-overlap: shrink end
			v.End = lopage
			kept = append(kept, v)
		case v.End > end: // left-overlap: advance start
			v.Off += end - v.Start
			v.Start = end
			kept = append(kept, v)
		default: // engulfed
			bottomOf(v.Obj).RemoveVma(v)
			v.Obj.Put()
		}
	}
	m.areas = kept
	return 0
}

// Clone returns a new, empty-of-objects address space with a twin vma
// for every source vma (same [start,end), off, prot, flags, Obj==nil).
// fork fills in each twin's Obj.
func (m *Vmmap) Clone() *Vmmap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := New()
	for _, v := range m.areas {
		out.areas = append(out.areas, &Vma{Start: v.Start, End: v.End, Off: v.Off, Prot: v.Prot, Flags: v.Flags})
	}
	return out
}

// Read copies count bytes starting at vaddr (a byte address) from the
// mapped pages covering it into buf.
func (m *Vmmap) Read(vaddr int, buf []byte) defs.Err_t {
	return m.iterate(vaddr, buf, false)
}

// Write copies len(buf) bytes into the mapped pages covering vaddr,
// dirtying each touched frame.
func (m *Vmmap) Write(vaddr int, buf []byte) defs.Err_t {
	return m.iterate(vaddr, buf, true)
}

func (m *Vmmap) iterate(vaddr int, buf []byte, write bool) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	const pageSize = defs.PageSize
	remaining := len(buf)
	done := 0
	for remaining > 0 {
		vfn := defs.PN(vaddr)
		v := m.lookup(vfn)
		if v == nil {
			return defs.EFAULT
		}
		pageoff := vaddr % pageSize
		n := pageSize - pageoff
		if n > remaining {
			n = remaining
		}
		pagenum := vfn - v.Start + v.Off
		pf, err := v.Obj.LookupPage(pagenum, write)
		if err != 0 {
			return err
		}
		if write {
			copy(pf.Frame.Data[pageoff:pageoff+n], buf[done:done+n])
			v.Obj.DirtyPage(pf)
		} else {
			copy(buf[done:done+n], pf.Frame.Data[pageoff:pageoff+n])
		}
		vaddr += n
		done += n
		remaining -= n
	}
	return 0
}
