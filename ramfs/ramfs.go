// Package ramfs implements an in-memory filesystem satisfying the
// full vfs.Ops contract (spec.md §6), used as the default root
// filesystem for boot and for end-to-end testing of the vfssyscall
// layer. It has no teacher analog; its state is an inode table plus a
// name map per directory, kept private to the filesystem.
package ramfs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/stat"
	"github.com/sharduld1908/weenix-go/vfs"
)

// inode is ramfs's private per-vnode state: regular-file byte content
// or a directory's name->child-ino map.
type inode struct {
	mu       sync.Mutex
	data     []byte
	entries  map[string]uint
	foreign  map[string]*vfs.Vnode
	rdev     uint
	pageObjs mmobj.Object
}

// FS is one ramfs instance. Each instance carries a distinct uuid so
// vfs's (fsid, ino) vnode cache never conflates vnodes across two
// mounted ramfs instances.
type FS struct {
	mu       sync.Mutex
	id       string
	nextIno  uint
	vnodes   map[uint]*vfs.Vnode
	inodes   map[uint]*inode
}

// New creates an empty ramfs instance with a single root directory
// vnode (ino 0).
func New() (*FS, *vfs.Vnode) {
	fs := &FS{
		id:     uuid.NewString(),
		vnodes: map[uint]*vfs.Vnode{},
		inodes: map[uint]*inode{},
	}
	root := fs.newVnode(defs.S_IFDIR)
	return fs, root
}

func (fs *FS) newVnode(mode uint) *vfs.Vnode {
	fs.mu.Lock()
	ino := fs.nextIno
	fs.nextIno++
	fs.mu.Unlock()

	in := &inode{}
	if defs.IsDir(mode) {
		in.entries = map[string]uint{}
	}

	v := vfs.New(fs.id, ino, mode, fs, func(dead *vfs.Vnode) {
		fs.mu.Lock()
		delete(fs.vnodes, dead.Ino)
		delete(fs.inodes, dead.Ino)
		fs.mu.Unlock()
		vfs.CacheEvict(fs.id, dead.Ino)
	})
	v.Nlink = 1

	fs.mu.Lock()
	fs.vnodes[ino] = v
	fs.inodes[ino] = in
	fs.mu.Unlock()
	vfs.CacheInsert(fs.id, ino, v)
	return v
}

func (fs *FS) inodeOf(v *vfs.Vnode) *inode {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.inodes[v.Ino]
}

// Mount grafts an external vnode (typically a devfs directory) into
// dir under name, so path resolution crosses into v's own Ops from
// here on. Unlike Create/Mkdir, v keeps its own FsID and is never
// recorded in this instance's inode table.
func (fs *FS) Mount(dir *vfs.Vnode, name string, v *vfs.Vnode) defs.Err_t {
	din := fs.inodeOf(dir)
	din.mu.Lock()
	defer din.mu.Unlock()
	if _, exists := din.entries[name]; exists {
		return defs.EEXIST
	}
	if din.foreign == nil {
		din.foreign = map[string]*vfs.Vnode{}
	}
	if _, exists := din.foreign[name]; exists {
		return defs.EEXIST
	}
	din.foreign[name] = v
	return 0
}

// Lookup implements vfs.Ops.
func (fs *FS) Lookup(dir *vfs.Vnode, name string) (*vfs.Vnode, defs.Err_t) {
	in := fs.inodeOf(dir)
	in.mu.Lock()
	if mounted, ok := in.foreign[name]; ok {
		in.mu.Unlock()
		mounted.Ref()
		return mounted, 0
	}
	ino, ok := in.entries[name]
	in.mu.Unlock()
	if !ok {
		return nil, defs.ENOENT
	}
	if cached, hit := vfs.CacheLookup(fs.id, ino); hit {
		return cached, 0
	}
	fs.mu.Lock()
	v := fs.vnodes[ino]
	fs.mu.Unlock()
	v.Ref()
	return v, 0
}

// Create implements vfs.Ops.
func (fs *FS) Create(dir *vfs.Vnode, name string) (*vfs.Vnode, defs.Err_t) {
	din := fs.inodeOf(dir)
	din.mu.Lock()
	if _, exists := din.entries[name]; exists {
		din.mu.Unlock()
		return nil, defs.EEXIST
	}
	if _, exists := din.foreign[name]; exists {
		din.mu.Unlock()
		return nil, defs.EEXIST
	}
	din.mu.Unlock()

	v := fs.newVnode(defs.S_IFREG)
	din.mu.Lock()
	din.entries[name] = v.Ino
	din.mu.Unlock()
	v.Ref()
	return v, 0
}

// Mknod implements vfs.Ops.
func (fs *FS) Mknod(dir *vfs.Vnode, name string, mode, devid uint) defs.Err_t {
	din := fs.inodeOf(dir)
	din.mu.Lock()
	if _, exists := din.entries[name]; exists {
		din.mu.Unlock()
		return defs.EEXIST
	}
	if _, exists := din.foreign[name]; exists {
		din.mu.Unlock()
		return defs.EEXIST
	}
	din.mu.Unlock()

	v := fs.newVnode(mode)
	v.Devid = devid
	in := fs.inodeOf(v)
	in.rdev = devid

	din.mu.Lock()
	din.entries[name] = v.Ino
	din.mu.Unlock()
	return 0
}

// Mkdir implements vfs.Ops.
func (fs *FS) Mkdir(dir *vfs.Vnode, name string) defs.Err_t {
	din := fs.inodeOf(dir)
	din.mu.Lock()
	if _, exists := din.entries[name]; exists {
		din.mu.Unlock()
		return defs.EEXIST
	}
	if _, exists := din.foreign[name]; exists {
		din.mu.Unlock()
		return defs.EEXIST
	}
	din.mu.Unlock()

	v := fs.newVnode(defs.S_IFDIR)
	din.mu.Lock()
	din.entries[name] = v.Ino
	din.mu.Unlock()
	return 0
}

// Rmdir implements vfs.Ops.
func (fs *FS) Rmdir(dir *vfs.Vnode, name string) defs.Err_t {
	din := fs.inodeOf(dir)
	din.mu.Lock()
	ino, ok := din.entries[name]
	din.mu.Unlock()
	if !ok {
		return defs.ENOENT
	}

	fs.mu.Lock()
	target := fs.vnodes[ino]
	tin := fs.inodes[ino]
	fs.mu.Unlock()
	if !target.IsDir() {
		return defs.ENOTDIR
	}
	tin.mu.Lock()
	empty := len(tin.entries) == 0
	tin.mu.Unlock()
	if !empty {
		return defs.ENOTEMPTY
	}

	din.mu.Lock()
	delete(din.entries, name)
	din.mu.Unlock()
	return 0
}

// Link implements vfs.Ops.
func (fs *FS) Link(from, dir *vfs.Vnode, name string) defs.Err_t {
	if from.IsDir() {
		return defs.EPERM
	}
	din := fs.inodeOf(dir)
	din.mu.Lock()
	if _, exists := din.entries[name]; exists {
		din.mu.Unlock()
		return defs.EEXIST
	}
	din.entries[name] = from.Ino
	din.mu.Unlock()
	from.Nlink++
	return 0
}

// Unlink implements vfs.Ops.
func (fs *FS) Unlink(dir *vfs.Vnode, name string) defs.Err_t {
	din := fs.inodeOf(dir)
	din.mu.Lock()
	ino, ok := din.entries[name]
	if !ok {
		din.mu.Unlock()
		return defs.ENOENT
	}
	delete(din.entries, name)
	din.mu.Unlock()

	fs.mu.Lock()
	target := fs.vnodes[ino]
	fs.mu.Unlock()
	target.Nlink--
	return 0
}

// Readdir implements vfs.Ops. Returns one entry per call, each
// advancing offset by 1, with an ENOENT-free EOF signaled by n == 0.
func (fs *FS) Readdir(dir *vfs.Vnode, offset int) (vfs.Dirent, int, defs.Err_t) {
	in := fs.inodeOf(dir)
	in.mu.Lock()
	defer in.mu.Unlock()
	total := len(in.entries) + len(in.foreign)
	if offset >= total {
		return vfs.Dirent{}, 0, 0
	}
	i := 0
	for name, ino := range in.entries {
		if i == offset {
			return vfs.Dirent{Ino: ino, Name: name}, 1, 0
		}
		i++
	}
	for name, v := range in.foreign {
		if i == offset {
			return vfs.Dirent{Ino: v.Ino, Name: name}, 1, 0
		}
		i++
	}
	return vfs.Dirent{}, 0, 0
}

// Read implements vfs.Ops.
func (fs *FS) Read(vn *vfs.Vnode, offset int, buf []byte) (int, defs.Err_t) {
	in := fs.inodeOf(vn)
	in.mu.Lock()
	defer in.mu.Unlock()
	if offset >= len(in.data) {
		return 0, 0
	}
	n := copy(buf, in.data[offset:])
	return n, 0
}

// Write implements vfs.Ops.
func (fs *FS) Write(vn *vfs.Vnode, offset int, buf []byte) (int, defs.Err_t) {
	in := fs.inodeOf(vn)
	in.mu.Lock()
	defer in.mu.Unlock()
	end := offset + len(buf)
	if end > len(in.data) {
		grown := make([]byte, end)
		copy(grown, in.data)
		in.data = grown
	}
	copy(in.data[offset:], buf)
	vn.Len = len(in.data)
	return len(buf), 0
}

// Mmap implements vfs.Ops, backing the vnode's pages with an
// mmobj.File pager that reads/writes through fillpage/cleanpage.
func (fs *FS) Mmap(vn *vfs.Vnode, prot, flags int) (mmobj.Object, defs.Err_t) {
	in := fs.inodeOf(vn)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.pageObjs == nil {
		in.pageObjs = mmobj.NewFile(vn)
	}
	return in.pageObjs, 0
}

// Stat implements vfs.Ops.
func (fs *FS) Stat(vn *vfs.Vnode) (stat.Stat_t, defs.Err_t) {
	in := fs.inodeOf(vn)
	in.mu.Lock()
	rdev := in.rdev
	in.mu.Unlock()
	return stat.Stat_t{
		Dev:   0,
		Ino:   vn.Ino,
		Mode:  vn.Mode,
		Size:  uint(vn.Len),
		Rdev:  rdev,
		Nlink: uint(vn.Nlink),
	}, 0
}

// Fillpage implements vfs.Ops / mmobj.Backer's read side.
func (fs *FS) Fillpage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t {
	in := fs.inodeOf(vn)
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range buf {
		buf[i] = 0
	}
	if offset >= len(in.data) {
		return 0
	}
	copy(buf, in.data[offset:])
	return 0
}

// Dirtypage implements vfs.Ops. ramfs pages are copy-on-write via
// mmobj's own shadow/anon machinery; the backing inode is updated only
// on Cleanpage (writeback), matching mmobj.File's contract.
func (fs *FS) Dirtypage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t { return 0 }

// Cleanpage implements vfs.Ops / mmobj.Backer's write side.
func (fs *FS) Cleanpage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t {
	in := fs.inodeOf(vn)
	in.mu.Lock()
	defer in.mu.Unlock()
	end := offset + len(buf)
	if end > len(in.data) {
		grown := make([]byte, end)
		copy(grown, in.data)
		in.data = grown
	}
	copy(in.data[offset:], buf)
	vn.Len = len(in.data)
	return 0
}
