package vfssyscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/proc"
	"github.com/sharduld1908/weenix-go/stat"
	"github.com/sharduld1908/weenix-go/vfs"
)

// memFS is a small in-memory filesystem double exercising every
// vfs.Ops method do_* needs, backed by a byte slice per regular file.
type memFS struct {
	children map[*vfs.Vnode]map[string]*vfs.Vnode
	data     map[*vfs.Vnode][]byte
}

func newMemFS() *memFS {
	return &memFS{children: map[*vfs.Vnode]map[string]*vfs.Vnode{}, data: map[*vfs.Vnode][]byte{}}
}

func (m *memFS) dir() *vfs.Vnode {
	v := vfs.New("mem", 0, defs.S_IFDIR, m, nil)
	m.children[v] = map[string]*vfs.Vnode{}
	return v
}

func (m *memFS) reg(parent *vfs.Vnode, name string) *vfs.Vnode {
	v := vfs.New("mem", 0, defs.S_IFREG, m, nil)
	m.children[parent][name] = v
	m.data[v] = nil
	return v
}

func (m *memFS) Lookup(dir *vfs.Vnode, name string) (*vfs.Vnode, defs.Err_t) {
	v, ok := m.children[dir][name]
	if !ok {
		return nil, defs.ENOENT
	}
	v.Ref()
	return v, 0
}
func (m *memFS) Create(dir *vfs.Vnode, name string) (*vfs.Vnode, defs.Err_t) {
	v := m.reg(dir, name)
	v.Ref()
	return v, 0
}
func (m *memFS) Mknod(dir *vfs.Vnode, name string, mode, devid uint) defs.Err_t {
	v := vfs.New("mem", 0, mode, m, nil)
	v.Devid = devid
	m.children[dir][name] = v
	return 0
}
func (m *memFS) Mkdir(dir *vfs.Vnode, name string) defs.Err_t {
	v := m.dir()
	m.children[dir][name] = v
	return 0
}
func (m *memFS) Rmdir(dir *vfs.Vnode, name string) defs.Err_t {
	v, ok := m.children[dir][name]
	if !ok {
		return defs.ENOENT
	}
	if len(m.children[v]) != 0 {
		return defs.ENOTEMPTY
	}
	delete(m.children[dir], name)
	return 0
}
func (m *memFS) Link(from, dir *vfs.Vnode, name string) defs.Err_t {
	m.children[dir][name] = from
	return 0
}
func (m *memFS) Unlink(dir *vfs.Vnode, name string) defs.Err_t {
	if _, ok := m.children[dir][name]; !ok {
		return defs.ENOENT
	}
	delete(m.children[dir], name)
	return 0
}
func (m *memFS) Readdir(dir *vfs.Vnode, offset int) (vfs.Dirent, int, defs.Err_t) {
	return vfs.Dirent{}, 0, 0
}
func (m *memFS) Read(vn *vfs.Vnode, offset int, buf []byte) (int, defs.Err_t) {
	d := m.data[vn]
	if offset >= len(d) {
		return 0, 0
	}
	n := copy(buf, d[offset:])
	return n, 0
}
func (m *memFS) Write(vn *vfs.Vnode, offset int, buf []byte) (int, defs.Err_t) {
	d := m.data[vn]
	end := offset + len(buf)
	if end > len(d) {
		grown := make([]byte, end)
		copy(grown, d)
		d = grown
	}
	copy(d[offset:], buf)
	m.data[vn] = d
	vn.Len = len(d)
	return len(buf), 0
}
func (m *memFS) Mmap(vn *vfs.Vnode, prot, flags int) (mmobj.Object, defs.Err_t) {
	return mmobj.NewAnon(), 0
}
func (m *memFS) Stat(vn *vfs.Vnode) (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Ino: vn.Ino, Mode: vn.Mode, Size: uint(vn.Len)}, 0
}
func (m *memFS) Fillpage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t  { return 0 }
func (m *memFS) Dirtypage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t { return 0 }
func (m *memFS) Cleanpage(vn *vfs.Vnode, offset int, buf []byte) defs.Err_t { return 0 }

func newTestProcess(t *testing.T, root *vfs.Vnode) *proc.Process {
	t.Helper()
	p, err := proc.Create("vfssyscall-test", nil)
	require.Equal(t, defs.Err_t(0), err)
	root.Ref()
	p.Cwd = root
	return p
}

func TestOpenWriteReadRoundtrip(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd, err := DoOpen(p, "/greeting", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)

	n, werr := DoWrite(p, fd, []byte("hello"))
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, 5, n)

	_, serr := DoLseek(p, fd, 0, defs.SEEK_SET)
	require.Equal(t, defs.Err_t(0), serr)

	buf := make([]byte, 5)
	n, rerr := DoRead(p, fd, buf)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestOpenWithoutCreateMissingIsENOENT(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	_, err := DoOpen(p, "/missing", defs.O_RDONLY)
	assert.Equal(t, defs.ENOENT, err)
}

func TestDoCloseNetsMinusOneReference(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd, err := DoOpen(p, "/f", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)
	f := p.Fds[fd]
	vn := f.Vnode
	beforeFile := f.Refcount()
	beforeVnode := vn.Refcount()

	cerr := DoClose(p, fd)
	require.Equal(t, defs.Err_t(0), cerr)
	assert.Equal(t, beforeFile-1, f.Refcount(), "do_close nets -1 on the file's refcount")
	assert.Equal(t, beforeVnode-1, vn.Refcount())
	assert.Nil(t, p.Fds[fd])
}

func TestDoDupChecksEmptyFd(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)
	ofd, oerr := DoOpen(p, "/f", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), oerr)
	for i := range p.Fds {
		if p.Fds[i] == nil {
			p.Fds[i] = &vfs.File{}
		}
	}
	fd, err := DoOpen(p, "/g", defs.O_CREAT|defs.O_RDWR)
	assert.Equal(t, -1, fd)
	assert.Equal(t, defs.EMFILE, err)

	dfd, derr := DoDup(p, ofd)
	assert.Equal(t, -1, dfd)
	assert.Equal(t, defs.EMFILE, derr)
}

func TestDoDup2SameFdReturnsOfd(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd, err := DoOpen(p, "/f", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)
	got, derr := DoDup2(p, fd, fd)
	require.Equal(t, defs.Err_t(0), derr)
	assert.Equal(t, fd, got)
}

func TestDoDup2ClosesExistingTarget(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd1, err := DoOpen(p, "/a", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)
	fd2, err := DoOpen(p, "/b", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)

	got, derr := DoDup2(p, fd1, fd2)
	require.Equal(t, defs.Err_t(0), derr)
	assert.Equal(t, fd2, got)
	assert.Same(t, p.Fds[fd1].Vnode, p.Fds[fd2].Vnode)
}

func TestDoMkdirThenRmdir(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	require.Equal(t, defs.Err_t(0), DoMkdir(p, "/sub"))
	assert.Equal(t, defs.EEXIST, DoMkdir(p, "/sub"))
	require.Equal(t, defs.Err_t(0), DoRmdir(p, "/sub"))
	assert.Equal(t, defs.ENOENT, DoRmdir(p, "/sub"))
}

func TestDoUnlinkRejectsDirectory(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	require.Equal(t, defs.Err_t(0), DoMkdir(p, "/sub"))
	assert.Equal(t, defs.EISDIR, DoUnlink(p, "/sub"))
}

func TestDoRenameOnlyLinksNeverUnlinks(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd, err := DoOpen(p, "/a", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)
	_, _ = DoWrite(p, fd, []byte("x"))

	require.Equal(t, defs.Err_t(0), DoRename(p, "/a", "/b"))

	_, lookErrA := vfs.Lookup(root, "a")
	_, lookErrB := vfs.Lookup(root, "b")
	assert.Equal(t, defs.Err_t(0), lookErrA, "rename must not unlink the source")
	assert.Equal(t, defs.Err_t(0), lookErrB)
}

func TestDoChdirRequiresDirectory(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	_, err := DoOpen(p, "/f", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)

	assert.Equal(t, defs.ENOTDIR, DoChdir(p, "/f"))
	require.Equal(t, defs.Err_t(0), DoChdir(p, "/"))
}

func TestDoStatEmptyPathIsEINVAL(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	_, err := DoStat(p, "")
	assert.Equal(t, defs.EINVAL, err)
}

func TestDoStatOnFile(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd, err := DoOpen(p, "/f", defs.O_CREAT|defs.O_RDWR)
	require.Equal(t, defs.Err_t(0), err)
	_, _ = DoWrite(p, fd, []byte("abc"))

	st, serr := DoStat(p, "/f")
	require.Equal(t, defs.Err_t(0), serr)
	assert.Equal(t, uint(3), st.Size)
}

func TestNegateMapsErrToNegative(t *testing.T) {
	assert.Equal(t, 0, Negate(0))
	assert.Equal(t, -int(defs.ENOENT), Negate(defs.ENOENT))
}

func TestProcFileMapperRejectsWriteToReadOnlyFile(t *testing.T) {
	fs := newMemFS()
	root := fs.dir()
	SetRoot(root)
	p := newTestProcess(t, root)

	fd, err := DoOpen(p, "/f", defs.O_CREAT|defs.O_RDONLY)
	require.Equal(t, defs.Err_t(0), err)

	fm := ProcFileMapper{P: p}
	_, merr := fm.Mmap(fd, defs.PROT_WRITE, defs.MAP_SHARED)
	assert.Equal(t, defs.EPERM, merr)
}
