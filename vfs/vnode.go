// Package vfs implements the vnode reference-counting contract, path
// resolution, and file-descriptor table spec.md §4.9-§4.10 describe.
// It has no teacher analog (biscuit hands filesystem access straight
// to the host); the vnode-ops-table style here mirrors the
// interface-per-backend pattern gcsfuse and jacobsa-fuse use for their
// own filesystem abstraction layers.
package vfs

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/stat"
)

// Dirent is one directory entry as returned by Ops.Readdir.
type Dirent struct {
	Ino  uint
	Name string
}

// Ops is the per-filesystem vnode operation table spec.md §6
// describes. Every vnode's Ops field must be fully populated; a vnode
// that cannot support an operation (e.g. lookup on a non-directory)
// returns the appropriate errno rather than leaving the method nil.
type Ops interface {
	Lookup(dir *Vnode, name string) (*Vnode, defs.Err_t)
	Create(dir *Vnode, name string) (*Vnode, defs.Err_t)
	Mknod(dir *Vnode, name string, mode uint, devid uint) defs.Err_t
	Mkdir(dir *Vnode, name string) defs.Err_t
	Rmdir(dir *Vnode, name string) defs.Err_t
	Link(from, dir *Vnode, name string) defs.Err_t
	Unlink(dir *Vnode, name string) defs.Err_t
	Readdir(dir *Vnode, offset int) (Dirent, int, defs.Err_t)
	Read(vn *Vnode, offset int, buf []byte) (int, defs.Err_t)
	Write(vn *Vnode, offset int, buf []byte) (int, defs.Err_t)
	Mmap(vn *Vnode, prot, flags int) (mmobj.Object, defs.Err_t)
	Stat(vn *Vnode) (stat.Stat_t, defs.Err_t)
	Fillpage(vn *Vnode, offset int, buf []byte) defs.Err_t
	Dirtypage(vn *Vnode, offset int, buf []byte) defs.Err_t
	Cleanpage(vn *Vnode, offset int, buf []byte) defs.Err_t
}

// Vnode is the kernel's handle for a filesystem object. Special-file
// vnodes (character/block devices) route Read/Write/Mmap to the
// registered device via their own Ops implementation but inherit
// Stat from the underlying filesystem by construction (the fs sets
// Mode/Devid itself).
type Vnode struct {
	mu       deadlock.Mutex
	FsID     string // filesystem instance id, see vcache.go
	Ino      uint
	Mode     uint
	Devid    uint
	Len      int
	Nlink    int
	Ops      Ops
	Private  any
	refcount int
	onZero   func(*Vnode)
}

// New returns a vnode with refcount 1. onZero, if non-nil, is invoked
// when the refcount returns to zero (a filesystem uses this to drop
// an unlinked-and-unreferenced inode from its table).
func New(fsid string, ino uint, mode uint, ops Ops, onZero func(*Vnode)) *Vnode {
	return &Vnode{FsID: fsid, Ino: ino, Mode: mode, Ops: ops, Nlink: 1, refcount: 1, onZero: onZero}
}

// Ref increments the vnode's reference count.
func (v *Vnode) Ref() {
	v.mu.Lock()
	v.refcount++
	v.mu.Unlock()
}

// Put decrements the vnode's reference count, invoking onZero if it
// reaches zero. Mirrors vput.
func (v *Vnode) Put() {
	v.mu.Lock()
	v.refcount--
	rc := v.refcount
	v.mu.Unlock()
	if rc == 0 && v.onZero != nil {
		v.onZero(v)
	}
}

// Refcount reports the vnode's current reference count.
func (v *Vnode) Refcount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refcount
}

// IsDir reports whether the vnode is a directory.
func (v *Vnode) IsDir() bool { return defs.IsDir(v.Mode) }

// ReadPage implements mmobj.Backer by delegating to the vnode's
// Fillpage op at the corresponding byte offset.
func (v *Vnode) ReadPage(pagenum int, buf []byte) defs.Err_t {
	return v.Ops.Fillpage(v, pagenum*defs.PageSize, buf)
}

// WritePage implements mmobj.Backer by delegating to the vnode's
// Cleanpage op, which performs the actual writeback.
func (v *Vnode) WritePage(pagenum int, buf []byte) defs.Err_t {
	return v.Ops.Cleanpage(v, pagenum*defs.PageSize, buf)
}

// Lookup routes to dir's lookup op, requiring dir to be a directory,
// per spec.md §4.9.
func Lookup(dir *Vnode, name string) (*Vnode, defs.Err_t) {
	if !dir.IsDir() {
		return nil, defs.ENOTDIR
	}
	return dir.Ops.Lookup(dir, name)
}
