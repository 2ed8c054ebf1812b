package vfs

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/sharduld1908/weenix-go/defs"
)

// File is a file descriptor entry (file_t): a reference-counted,
// positioned handle onto a vnode, shared by every fd table slot that
// dup'd or inherited it.
type File struct {
	mu       deadlock.Mutex
	refcount int
	Mode     int // bitmask of defs.O_RDONLY/O_WRONLY/O_RDWR/O_APPEND
	Pos      int
	Vnode    *Vnode
}

// NewFile returns a File with refcount 1, wrapping vn (which must
// already carry its own reference for this File to own).
func NewFile(vn *Vnode, mode int) *File {
	return &File{refcount: 1, Mode: mode, Vnode: vn}
}

// Ref increments the file's reference count (fget).
func (f *File) Ref() {
	f.mu.Lock()
	f.refcount++
	f.mu.Unlock()
}

// Put decrements the file's reference count, releasing the underlying
// vnode reference once it reaches zero (fput).
func (f *File) Put() {
	f.mu.Lock()
	f.refcount--
	rc := f.refcount
	f.mu.Unlock()
	if rc == 0 {
		f.Vnode.Put()
	}
}

// Refcount reports the file's current reference count.
func (f *File) Refcount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refcount
}

// Writable reports whether f was opened for writing.
func (f *File) Writable() bool {
	return f.Mode&(defs.O_WRONLY|defs.O_RDWR) != 0
}

// Readable reports whether f was opened for reading.
func (f *File) Readable() bool {
	return f.Mode&defs.O_RDWR != 0 || f.Mode&defs.O_WRONLY == 0
}

// GetEmptyFd returns the index of the first nil slot in table, or
// EMFILE if none exists.
func GetEmptyFd(table []*File) (int, defs.Err_t) {
	for i, f := range table {
		if f == nil {
			return i, 0
		}
	}
	return -1, defs.EMFILE
}
