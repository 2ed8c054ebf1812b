// Package pagetable models the page-table / TLB primitives spec.md
// treats as an opaque external collaborator (page_alloc_n, pt_map,
// pt_unmap_range, tlb_flush_all). Since this kernel simulates
// addressing in plain Go rather than walking real multi-level page
// tables, a page table here is a sparse map from virtual page number
// to a software PTE; "TLB flush" is a counter, bumped by the
// vmsyscall brk/mmap/munmap paths and by fork, and readable through
// Shootdowns.
package pagetable

import (
	"sync"

	"github.com/sharduld1908/weenix-go/pageframe"
)

// PTE mirrors the protection/state bits spec.md's fault handler and
// vmmap rely on (present, writable, copy-on-write, dirty).
type PTE struct {
	Frame    *pageframe.Frame
	Present  bool
	Writable bool
	COW      bool
	Dirty    bool
}

// Table is one process's page table: a sparse vpn -> PTE map guarded
// by a mutex, plus a shootdown counter standing in for tlb_flush_all.
type Table struct {
	mu        sync.Mutex
	entries   map[int]*PTE
	shotdowns int64
}

// NewTable allocates an empty page table (the "empty page directory"
// proc_create initializes per spec.md §4.3).
func NewTable() *Table {
	return &Table{entries: make(map[int]*PTE)}
}

// Lookup returns the PTE for vpn, if mapped.
func (t *Table) Lookup(vpn int) (*PTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pte, ok := t.entries[vpn]
	return pte, ok
}

// Map installs or replaces the mapping for vpn.
func (t *Table) Map(vpn int, pte PTE) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := pte
	t.entries[vpn] = &cp
}

// Unmap removes the mapping for vpn, reporting whether one existed.
func (t *Table) Unmap(vpn int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[vpn]
	delete(t.entries, vpn)
	return ok
}

// UnmapRange removes every mapping in [startvpn, startvpn+npages),
// mirroring pt_unmap_range, and returns the unmapped PTEs so the
// caller can drop their frame references.
func (t *Table) UnmapRange(startvpn, npages int) []*PTE {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*PTE
	for vpn := startvpn; vpn < startvpn+npages; vpn++ {
		if pte, ok := t.entries[vpn]; ok {
			out = append(out, pte)
			delete(t.entries, vpn)
		}
	}
	return out
}

// FlushAll records a TLB shootdown, mirroring tlb_flush_all.
func (t *Table) FlushAll() {
	t.mu.Lock()
	t.shotdowns++
	t.mu.Unlock()
}

// Shootdowns reports how many flushes have occurred (test/metrics use).
func (t *Table) Shootdowns() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shotdowns
}

// Clone returns a fresh, empty table. Per spec.md §4.6 vmmap.clone,
// the new address space's page table starts empty — PTEs are rebuilt
// lazily by future page faults, never copied.
func (t *Table) Clone() *Table {
	return NewTable()
}
