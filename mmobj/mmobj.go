// Package mmobj implements the reference-counted memory-object
// hierarchy spec.md §4.4 describes: anonymous, shadow (copy-on-write),
// and file-backed pagers, each exposing the same
// ref/put/lookuppage/fillpage/dirtypage/cleanpage contract. The
// teacher kernel has no equivalent layer (it hands mmap straight to
// the host's virtual memory), so this package follows the spec's
// algorithm directly, expressed with the interface-plus-embedded-base
// style used throughout the example pack's larger services for
// sharing ref-counting/locking boilerplate across variants.
package mmobj

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/metrics"
	"github.com/sharduld1908/weenix-go/pageframe"
)

// Pframe is a single resident page of a memory object: a page frame
// bound to a (object, pagenum) pair.
type Pframe struct {
	Pagenum int
	Frame   *pageframe.Frame
	Pinned  bool
	Dirty   bool
}

// Object is the common interface every memory-object variant
// implements. AddVma/RemoveVma/Vmas track, for the bottommost object
// in a shadow chain, which vmareas are currently rooted there — the
// type is `any` rather than a concrete vmmap type to avoid a package
// cycle (vmmap necessarily imports mmobj, not the reverse); callers
// type-assert back to their own vma type.
type Object interface {
	Ref()
	Put() bool // returns true if this call reclaimed the object
	Refcount() int
	LookupPage(pagenum int, forwrite bool) (*Pframe, defs.Err_t)
	FillPage(pf *Pframe) defs.Err_t
	DirtyPage(pf *Pframe) defs.Err_t
	CleanPage(pf *Pframe) defs.Err_t
	AddVma(v any)
	RemoveVma(v any)
	Vmas() []any
}

// Backer is implemented by a filesystem's vnode to supply file-backed
// pages; it keeps this package independent of the vfs package.
type Backer interface {
	ReadPage(pagenum int, buf []byte) defs.Err_t
	WritePage(pagenum int, buf []byte) defs.Err_t
}

var pool = pageframe.NewPool(1 << 16)

// SetPool overrides the shared page-frame pool (tests use a small
// pool to exercise allocation failure).
func SetPool(p *pageframe.Pool) { pool = p }

type base struct {
	mu       deadlock.Mutex
	refcount int
	pages    map[int]*Pframe
	vmas     []any
}

func newBase() base {
	return base{refcount: 1, pages: make(map[int]*Pframe)}
}

func (b *base) Ref() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refcount++
}

func (b *base) Refcount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refcount
}

func (b *base) AddVma(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vmas = append(b.vmas, v)
}

func (b *base) RemoveVma(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cand := range b.vmas {
		if cand == v {
			b.vmas = append(b.vmas[:i], b.vmas[i+1:]...)
			return
		}
	}
}

func (b *base) Vmas() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.vmas))
	copy(out, b.vmas)
	return out
}

// lockedPut decrements refcount and reports whether the object should
// now be reclaimed, along with the resident frames to unpin/free if
// so. spec.md §3 states the reclaim condition as "refcount ==
// nrespages": resident pages hold an implicit back-reference to their
// object there. This implementation never materializes that implicit
// reference (resident pages are tracked in `pages` without bumping
// refcount), so the equivalent, simplified condition is refcount == 0
// — no external holder (vma, shadow, fork duplicate) remains.
func (b *base) lockedPut() (bool, []*Pframe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refcount--
	if b.refcount != 0 {
		return false, nil
	}
	frames := make([]*Pframe, 0, len(b.pages))
	for _, pf := range b.pages {
		frames = append(frames, pf)
	}
	b.pages = make(map[int]*Pframe)
	return true, frames
}

func (b *base) resident(pagenum int) (*Pframe, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pf, ok := b.pages[pagenum]
	return pf, ok
}

func (b *base) insert(pf *Pframe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[pf.Pagenum] = pf
}

func freeFrames(frames []*Pframe) {
	for _, pf := range frames {
		pf.Pinned = false
		pool.Refdown(pf.Frame)
	}
	metrics.MmobjReclaimsTotal.Inc()
}

// pframeGet is the generic "find or fill" path: return the resident
// page if present, else allocate a frame, ask the object to fill it,
// and cache it. Mirrors pframe_get.
func pframeGet(o Object, pagenum int, cache *base) (*Pframe, defs.Err_t) {
	if pf, ok := cache.resident(pagenum); ok {
		return pf, 0
	}
	frame, ok := pool.Alloc()
	if !ok {
		return nil, defs.ENOMEM
	}
	pf := &Pframe{Pagenum: pagenum, Frame: frame}
	if err := o.FillPage(pf); err != 0 {
		pool.Refdown(frame)
		return nil, err
	}
	pf.Pinned = true
	cache.insert(pf)
	return pf, 0
}

// Anon is the anonymous, zero-fill-on-demand memory object variant.
type Anon struct{ base }

// NewAnon returns a fresh anonymous object with refcount 1.
func NewAnon() *Anon {
	return &Anon{base: newBase()}
}

func (a *Anon) LookupPage(pagenum int, forwrite bool) (*Pframe, defs.Err_t) {
	return pframeGet(a, pagenum, &a.base)
}

func (a *Anon) FillPage(pf *Pframe) defs.Err_t {
	pf.Frame.Data = [pageframe.PageSize]byte{}
	return 0
}

func (a *Anon) DirtyPage(pf *Pframe) defs.Err_t {
	pf.Dirty = true
	return 0
}

func (a *Anon) CleanPage(pf *Pframe) defs.Err_t { return 0 }

// Put decrements the refcount, reclaiming (unpinning and freeing every
// resident frame) when refcount drops to zero (see lockedPut).
func (a *Anon) Put() bool {
	reclaim, frames := a.lockedPut()
	if reclaim {
		freeFrames(frames)
	}
	return reclaim
}

// Shadow is a thin copy-on-write overlay above exactly one shadowed
// object, per spec.md §4.4.
type Shadow struct {
	base
	shadowed Object
	bottom   Object
}

// NewShadow creates a shadow object on top of shadowed, whose
// bottommost non-shadow ancestor is bottom.
func NewShadow(shadowed, bottom Object) *Shadow {
	return &Shadow{base: newBase(), shadowed: shadowed, bottom: bottom}
}

// Shadowed returns the object immediately beneath this shadow.
func (s *Shadow) Shadowed() Object { return s.shadowed }

// Bottom returns the bottommost non-shadow object in this chain.
func (s *Shadow) Bottom() Object { return s.bottom }

// BottomOf returns o's bottommost non-shadow ancestor, or o itself if
// it isn't a Shadow. vmmap and proc use this to find the object whose
// vma list a given mapping's chain is actually rooted on.
func BottomOf(o Object) Object {
	if s, ok := o.(*Shadow); ok {
		return s.Bottom()
	}
	return o
}

func (s *Shadow) LookupPage(pagenum int, forwrite bool) (*Pframe, defs.Err_t) {
	if forwrite {
		return pframeGet(s, pagenum, &s.base)
	}
	if pf, ok := s.base.resident(pagenum); ok {
		return pf, 0
	}
	cur := s.shadowed
	for {
		sh, isShadow := cur.(*Shadow)
		if !isShadow {
			break
		}
		if pf, ok := sh.base.resident(pagenum); ok {
			return pf, 0
		}
		cur = sh.shadowed
	}
	return s.bottom.LookupPage(pagenum, false)
}

// FillPage walks the shadow chain downward from the object this shadow
// covers, iteratively (never recursively), stopping at the first
// resident hit or at the bottom object, and copies PAGE_SIZE bytes
// from there into pf. It does not pin pf; pframeGet does that after
// the fill.
func (s *Shadow) FillPage(pf *Pframe) defs.Err_t {
	var src *Pframe
	cur := s.shadowed
	for {
		sh, isShadow := cur.(*Shadow)
		if !isShadow {
			break
		}
		if found, ok := sh.base.resident(pf.Pagenum); ok {
			src = found
			break
		}
		cur = sh.shadowed
	}
	if src == nil {
		var err defs.Err_t
		src, err = s.bottom.LookupPage(pf.Pagenum, false)
		if err != 0 {
			return err
		}
	}
	pf.Frame.Data = src.Frame.Data
	return 0
}

func (s *Shadow) DirtyPage(pf *Pframe) defs.Err_t {
	pf.Dirty = true
	return 0
}

func (s *Shadow) CleanPage(pf *Pframe) defs.Err_t { return 0 }

// Put reclaims like Anon, additionally forwarding Put to the shadowed
// object when this shadow is reclaimed.
func (s *Shadow) Put() bool {
	reclaim, frames := s.lockedPut()
	if reclaim {
		freeFrames(frames)
		s.shadowed.Put()
	}
	return reclaim
}

// File is the file-backed memory object variant: pages are lazily
// filled from a Backer (a vnode) and written back via dirty/clean.
type File struct {
	base
	backer Backer
}

// NewFile creates a file-backed object over backer.
func NewFile(backer Backer) *File {
	return &File{base: newBase(), backer: backer}
}

func (f *File) LookupPage(pagenum int, forwrite bool) (*Pframe, defs.Err_t) {
	return pframeGet(f, pagenum, &f.base)
}

func (f *File) FillPage(pf *Pframe) defs.Err_t {
	return f.backer.ReadPage(pf.Pagenum, pf.Frame.Data[:])
}

func (f *File) DirtyPage(pf *Pframe) defs.Err_t {
	pf.Dirty = true
	return 0
}

func (f *File) CleanPage(pf *Pframe) defs.Err_t {
	if !pf.Dirty {
		return 0
	}
	if err := f.backer.WritePage(pf.Pagenum, pf.Frame.Data[:]); err != 0 {
		return err
	}
	pf.Dirty = false
	return 0
}

func (f *File) Put() bool {
	reclaim, frames := f.lockedPut()
	if reclaim {
		for _, pf := range frames {
			if pf.Dirty {
				f.backer.WritePage(pf.Pagenum, pf.Frame.Data[:])
			}
		}
		freeFrames(frames)
	}
	return reclaim
}
