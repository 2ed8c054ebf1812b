// Package devfs provides the standard device vnodes spec.md §6
// names: /dev/null, /dev/zero, /dev/tty0. Each is mounted as a
// character-device vnode whose Ops reach into this package's
// device-id-keyed registry rather than a directory-backed inode store,
// since devices have no namespace operations of their own (mkdir,
// rmdir, link on a device vnode are all nonsensical and rejected).
package devfs

import (
	"sort"
	"sync"

	"github.com/sharduld1908/weenix-go/circbuf"
	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/stat"
	"github.com/sharduld1908/weenix-go/vfs"
)

// device is the per-devid behavior a devfs vnode's Ops dispatches to.
type device interface {
	read(buf []byte) (int, defs.Err_t)
	write(buf []byte) (int, defs.Err_t)
}

type nullDevice struct{}

func (nullDevice) read(buf []byte) (int, defs.Err_t)  { return 0, 0 }
func (nullDevice) write(buf []byte) (int, defs.Err_t) { return len(buf), 0 }

type zeroDevice struct{}

func (zeroDevice) read(buf []byte) (int, defs.Err_t) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), 0
}
func (zeroDevice) write(buf []byte) (int, defs.Err_t) { return len(buf), 0 }

// ttyDevice is backed by a circbuf ring; per spec.md §5 device I/O in
// this core never blocks, so a read against an empty ring returns 0
// bytes immediately rather than putting the caller to sleep.
type ttyDevice struct {
	mu  sync.Mutex
	buf circbuf.Circbuf_t
}

func newTTYDevice() *ttyDevice {
	t := &ttyDevice{}
	t.buf.Init(4096)
	return t
}

func (t *ttyDevice) read(buf []byte) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.ReadAndConsume(buf), 0
}

func (t *ttyDevice) write(buf []byte) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(buf), 0
}

// FS is the devfs Ops implementation. Every vnode it creates routes
// Read/Write to the device keyed by that vnode's Devid. entries holds
// the single directory's namespace (devfs is always one flat
// directory, so it is not keyed per-dir vnode).
type FS struct {
	mu      sync.Mutex
	nextIno uint
	devices map[uint]device
	dir     *vfs.Vnode
	entries map[string]*vfs.Vnode
}

// New returns a devfs instance populated with /dev/null, /dev/zero,
// and /dev/tty0, plus a directory vnode to hold them.
func New(fsid string) (*FS, *vfs.Vnode, map[string]*vfs.Vnode) {
	fs := &FS{devices: map[uint]device{}}
	dir := fs.newVnode(fsid, defs.S_IFDIR, 0)
	fs.dir = dir

	entries := map[string]*vfs.Vnode{
		"null": fs.mkdev(fsid, defs.DevNull, nullDevice{}),
		"zero": fs.mkdev(fsid, defs.DevZero, zeroDevice{}),
		"tty0": fs.mkdev(fsid, defs.DevTTY0, newTTYDevice()),
	}
	fs.entries = entries
	return fs, dir, entries
}

func (fs *FS) newVnode(fsid string, mode uint, devid uint) *vfs.Vnode {
	fs.mu.Lock()
	ino := fs.nextIno
	fs.nextIno++
	fs.mu.Unlock()
	v := vfs.New(fsid, ino, mode, fs, nil)
	v.Devid = devid
	return v
}

func (fs *FS) mkdev(fsid string, devid uint, d device) *vfs.Vnode {
	v := fs.newVnode(fsid, defs.S_IFCHR, devid)
	fs.mu.Lock()
	fs.devices[devid] = d
	fs.mu.Unlock()
	return v
}

func (fs *FS) deviceFor(vn *vfs.Vnode) (device, defs.Err_t) {
	fs.mu.Lock()
	d, ok := fs.devices[vn.Devid]
	fs.mu.Unlock()
	if !ok {
		return nil, defs.ENXIO
	}
	return d, 0
}

// Read implements vfs.Ops. Per spec.md §9, only character devices are
// supported; a block-device vnode (none are registered by New) would
// be a logic error to reach here.
func (fs *FS) Read(vn *vfs.Vnode, offset int, buf []byte) (int, defs.Err_t) {
	d, err := fs.deviceFor(vn)
	if err != 0 {
		return 0, err
	}
	return d.read(buf)
}

// Write implements vfs.Ops.
func (fs *FS) Write(vn *vfs.Vnode, offset int, buf []byte) (int, defs.Err_t) {
	d, err := fs.deviceFor(vn)
	if err != 0 {
		return 0, err
	}
	return d.write(buf)
}

// Stat implements vfs.Ops.
func (fs *FS) Stat(vn *vfs.Vnode) (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Ino: vn.Ino, Mode: vn.Mode, Rdev: vn.Devid, Nlink: uint(vn.Nlink)}, 0
}

// Lookup resolves a device's well-known name within the devfs
// directory. devfs is always a single flat directory, so dir is only
// checked, never consulted for its own identity.
func (fs *FS) Lookup(dir *vfs.Vnode, name string) (*vfs.Vnode, defs.Err_t) {
	if !dir.IsDir() {
		return nil, defs.ENOTDIR
	}
	fs.mu.Lock()
	v, ok := fs.entries[name]
	fs.mu.Unlock()
	if !ok {
		return nil, defs.ENOENT
	}
	v.Ref()
	return v, 0
}

// Readdir walks the fixed device table in a stable (sorted) order.
// Create, Mkdir, Rmdir, Link, Unlink, Mknod and the page ops remain
// nonsensical on a device directory/vnode; devfs only ever hands out
// the fixed set of vnodes populated by New, so those simply reject.
func (fs *FS) Readdir(dir *vfs.Vnode, offset int) (vfs.Dirent, int, defs.Err_t) {
	if !dir.IsDir() {
		return vfs.Dirent{}, 0, defs.ENOTDIR
	}
	fs.mu.Lock()
	names := make([]string, 0, len(fs.entries))
	for name := range fs.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	fs.mu.Unlock()
	if offset >= len(names) {
		return vfs.Dirent{}, 0, 0
	}
	name := names[offset]
	fs.mu.Lock()
	v := fs.entries[name]
	fs.mu.Unlock()
	return vfs.Dirent{Ino: v.Ino, Name: name}, 1, 0
}
func (fs *FS) Create(dir *vfs.Vnode, name string) (*vfs.Vnode, defs.Err_t) {
	return nil, defs.ENOTDIR
}
func (fs *FS) Mknod(dir *vfs.Vnode, name string, mode, devid uint) defs.Err_t { return defs.ENOTDIR }
func (fs *FS) Mkdir(dir *vfs.Vnode, name string) defs.Err_t                   { return defs.ENOTDIR }
func (fs *FS) Rmdir(dir *vfs.Vnode, name string) defs.Err_t                   { return defs.ENOTDIR }
func (fs *FS) Link(from, dir *vfs.Vnode, name string) defs.Err_t              { return defs.ENOTDIR }
func (fs *FS) Unlink(dir *vfs.Vnode, name string) defs.Err_t                  { return defs.ENOTDIR }
func (fs *FS) Mmap(vn *vfs.Vnode, prot, flags int) (mmobj.Object, defs.Err_t) {
	return nil, defs.ENXIO
}
func (fs *FS) Fillpage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t  { return defs.ENXIO }
func (fs *FS) Dirtypage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t { return defs.ENXIO }
func (fs *FS) Cleanpage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t { return defs.ENXIO }
