// Package vfssyscall implements the do_* file-descriptor and
// namespace operations spec.md §4.10 describes, on top of vfs and
// proc. This is the boundary where the core's internal
// positive-magnitude Err_t convention is negated to match the public
// syscall surface's "positive return on success, negative error code
// on failure" rule (spec.md §6).
package vfssyscall

import (
	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/metrics"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/proc"
	"github.com/sharduld1908/weenix-go/stat"
	"github.com/sharduld1908/weenix-go/vfs"
)

// Root is the filesystem root vnode, installed once by kernel boot.
var Root *vfs.Vnode

// SetRoot installs the VFS root. Called exactly once during boot.
func SetRoot(v *vfs.Vnode) { Root = v }

// Negate converts a positive-magnitude Err_t (0 == success) into the
// syscall return convention: 0 or positive on success, negative on
// failure.
func Negate(err defs.Err_t) int {
	if err == 0 {
		return 0
	}
	return -int(err)
}

func getFile(p *proc.Process, fd int) (*vfs.File, defs.Err_t) {
	if fd < 0 || fd >= len(p.Fds) || p.Fds[fd] == nil {
		return nil, defs.EBADF
	}
	f := p.Fds[fd]
	f.Ref()
	return f, 0
}

// DoOpen implements do_open.
func DoOpen(p *proc.Process, path string, flags int) (int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("open").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	fd, ferr := vfs.GetEmptyFd(p.Fds)
	if ferr != 0 {
		return -1, ferr
	}

	vn, err := vfs.OpenNamev(path, flags, Root, p.Cwd)
	if err != 0 {
		return -1, err
	}
	if vn.IsDir() && flags&(defs.O_WRONLY|defs.O_RDWR) != 0 {
		vn.Put()
		return -1, defs.EISDIR
	}

	f := vfs.NewFile(vn, flags&(defs.O_WRONLY|defs.O_RDWR|defs.O_APPEND))
	p.Fds[fd] = f
	return fd, 0
}

// DoRead implements do_read.
func DoRead(p *proc.Process, fd int, buf []byte) (int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("read").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	f, err := getFile(p, fd)
	if err != 0 {
		return -1, err
	}
	defer f.Put()
	if !f.Readable() {
		return -1, defs.EBADF
	}
	if f.Vnode.IsDir() {
		return -1, defs.EISDIR
	}
	n, rerr := f.Vnode.Ops.Read(f.Vnode, f.Pos, buf)
	if rerr != 0 {
		return -1, rerr
	}
	f.Pos += n
	return n, 0
}

// DoWrite implements do_write.
func DoWrite(p *proc.Process, fd int, buf []byte) (int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("write").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	f, err := getFile(p, fd)
	if err != 0 {
		return -1, err
	}
	defer f.Put()
	if !f.Writable() {
		return -1, defs.EBADF
	}
	if f.Mode&defs.O_APPEND != 0 {
		f.Pos = f.Vnode.Len
	}
	n, werr := f.Vnode.Ops.Write(f.Vnode, f.Pos, buf)
	if werr != 0 {
		return -1, werr
	}
	f.Pos += n
	return n, 0
}

// DoClose implements do_close. Per spec.md §9, close calls fput
// twice — once to balance getFile's own fget, once for the fd slot's
// reference — a net −1 relative to the pre-call refcount. This exact
// double-release is preserved rather than "fixed."
func DoClose(p *proc.Process, fd int) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("close").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	f, err := getFile(p, fd)
	if err != 0 {
		return err
	}
	p.Fds[fd] = nil
	f.Put()
	f.Put()
	return 0
}

// DoDup implements do_dup. Unlike the source this fixes the
// documented bug (spec.md §9): get_empty_fd's result is checked
// before use.
func DoDup(p *proc.Process, ofd int) (int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("dup").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	f, err := getFile(p, ofd)
	if err != 0 {
		return -1, err
	}
	nfd, ferr := vfs.GetEmptyFd(p.Fds)
	if ferr != 0 {
		f.Put()
		return -1, ferr
	}
	p.Fds[nfd] = f
	return nfd, 0
}

// DoDup2 implements do_dup2.
func DoDup2(p *proc.Process, ofd, nfd int) (int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("dup2").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	if nfd < 0 || nfd >= len(p.Fds) {
		return -1, defs.EBADF
	}
	f, err := getFile(p, ofd)
	if err != 0 {
		return -1, err
	}
	if nfd == ofd {
		f.Put()
		return ofd, 0
	}
	if p.Fds[nfd] != nil {
		if cerr := DoClose(p, nfd); cerr != 0 {
			f.Put()
			return -1, cerr
		}
	}
	p.Fds[nfd] = f
	return nfd, 0
}

// DoMknod implements do_mknod.
func DoMknod(p *proc.Process, path string, mode, devid uint) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("mknod").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	if !defs.IsChr(mode) && !defs.IsBlk(mode) {
		return defs.EINVAL
	}
	parent, name, err := vfs.DirNamev(path, Root, p.Cwd)
	if err != 0 {
		return err
	}
	defer parent.Put()
	if _, lerr := vfs.Lookup(parent, name); lerr == 0 {
		return defs.EEXIST
	} else if lerr != defs.ENOENT {
		return lerr
	}
	return parent.Ops.Mknod(parent, name, mode, devid)
}

// DoMkdir implements do_mkdir.
func DoMkdir(p *proc.Process, path string) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("mkdir").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	parent, name, err := vfs.DirNamev(path, Root, p.Cwd)
	if err != 0 {
		return err
	}
	defer parent.Put()
	if _, lerr := vfs.Lookup(parent, name); lerr == 0 {
		return defs.EEXIST
	} else if lerr != defs.ENOENT {
		return lerr
	}
	return parent.Ops.Mkdir(parent, name)
}

// DoRmdir implements do_rmdir.
func DoRmdir(p *proc.Process, path string) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("rmdir").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	parent, name, err := vfs.DirNamev(path, Root, p.Cwd)
	if err != 0 {
		return err
	}
	defer parent.Put()
	return parent.Ops.Rmdir(parent, name)
}

// DoUnlink implements do_unlink.
func DoUnlink(p *proc.Process, path string) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("unlink").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	parent, name, err := vfs.DirNamev(path, Root, p.Cwd)
	if err != 0 {
		return err
	}
	defer parent.Put()
	target, lerr := vfs.Lookup(parent, name)
	if lerr != 0 {
		return lerr
	}
	if target.IsDir() {
		target.Put()
		return defs.EISDIR
	}
	target.Put()
	return parent.Ops.Unlink(parent, name)
}

// DoLink implements do_link.
func DoLink(p *proc.Process, from, to string) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("link").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	fromVn, err := vfs.OpenNamev(from, 0, Root, p.Cwd)
	if err != 0 {
		return err
	}
	defer fromVn.Put()
	parent, name, derr := vfs.DirNamev(to, Root, p.Cwd)
	if derr != 0 {
		return derr
	}
	defer parent.Put()
	if _, lerr := vfs.Lookup(parent, name); lerr == 0 {
		return defs.EEXIST
	} else if lerr != defs.ENOENT {
		return lerr
	}
	return parent.Ops.Link(fromVn, parent, name)
}

// DoRename implements do_rename. Per spec.md §9 this core's source
// performs only link, never unlink — preserved literally rather than
// "corrected" to POSIX rename semantics.
func DoRename(p *proc.Process, from, to string) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("rename").Inc()
	return DoLink(p, from, to)
}

// DoChdir implements do_chdir.
func DoChdir(p *proc.Process, path string) defs.Err_t {
	metrics.VfsOpsTotal.WithLabelValues("chdir").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	vn, err := vfs.OpenNamev(path, 0, Root, p.Cwd)
	if err != 0 {
		return err
	}
	if !vn.IsDir() {
		vn.Put()
		return defs.ENOTDIR
	}
	if p.Cwd != nil {
		p.Cwd.Put()
	}
	p.Cwd = vn
	return 0
}

// DoGetdent implements do_getdent.
func DoGetdent(p *proc.Process, fd int) (vfs.Dirent, int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("getdent").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	f, err := getFile(p, fd)
	if err != 0 {
		return vfs.Dirent{}, -1, err
	}
	defer f.Put()
	if !f.Vnode.IsDir() {
		return vfs.Dirent{}, -1, defs.ENOTDIR
	}
	d, n, derr := f.Vnode.Ops.Readdir(f.Vnode, f.Pos)
	if derr != 0 {
		return vfs.Dirent{}, -1, derr
	}
	f.Pos += n
	return d, n, 0
}

// DoLseek implements do_lseek.
func DoLseek(p *proc.Process, fd, offset, whence int) (int, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("lseek").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	f, err := getFile(p, fd)
	if err != 0 {
		return -1, err
	}
	defer f.Put()

	var newPos int
	switch whence {
	case defs.SEEK_SET:
		newPos = offset
	case defs.SEEK_CUR:
		newPos = f.Pos + offset
	case defs.SEEK_END:
		newPos = f.Vnode.Len + offset
	default:
		return -1, defs.EINVAL
	}
	if newPos < 0 {
		return -1, defs.EINVAL
	}
	f.Pos = newPos
	return newPos, 0
}

// DoStat implements do_stat. An empty path is EINVAL; if the final
// path component is empty (the path resolved directly to a
// directory), the parent itself is stat'd.
func DoStat(p *proc.Process, path string) (stat.Stat_t, defs.Err_t) {
	metrics.VfsOpsTotal.WithLabelValues("stat").Inc()
	defer p.Accnt.Finish(p.Accnt.Now())
	if path == "" {
		return stat.Stat_t{}, defs.EINVAL
	}
	parent, name, err := vfs.DirNamev(path, Root, p.Cwd)
	if err != 0 {
		return stat.Stat_t{}, err
	}
	if name == "" {
		defer parent.Put()
		return parent.Ops.Stat(parent)
	}
	target, lerr := vfs.Lookup(parent, name)
	parent.Put()
	if lerr != 0 {
		return stat.Stat_t{}, lerr
	}
	defer target.Put()
	return target.Ops.Stat(target)
}

// ProcFileMapper adapts a process's fd table to vmsyscall.FileMapper,
// extracting the vnode backing fd for do_mmap without vmsyscall
// needing to import vfs.
type ProcFileMapper struct{ P *proc.Process }

// Mmap validates fd and returns the mmobj.Object backing its vnode.
func (pm ProcFileMapper) Mmap(fd int, prot, flags int) (mmobj.Object, defs.Err_t) {
	f, err := getFile(pm.P, fd)
	if err != 0 {
		return nil, err
	}
	defer f.Put()
	if prot&defs.PROT_WRITE != 0 && flags&defs.MAP_SHARED != 0 && !f.Writable() {
		return nil, defs.EPERM
	}
	return f.Vnode.Ops.Mmap(f.Vnode, prot, flags)
}
