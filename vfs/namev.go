package vfs

import (
	"strings"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/ustr"
)

// DirNamev resolves path to its parent directory, returning the final
// path component's name. A leading '/' resolves from root; otherwise
// resolution starts at start (the caller's cwd, or an explicit base).
// Intermediate components must be directories; empty components
// (e.g. "//") are skipped. On success the returned parent carries an
// incremented reference; on error no reference is leaked.
func DirNamev(path string, root, start *Vnode) (parent *Vnode, name string, err defs.Err_t) {
	u := ustr.Ustr(path)
	cur := start
	if u.IsAbsolute() {
		cur = root
	}
	cur.Ref()

	comps := u.Components()
	if len(comps) == 0 {
		return cur, "", 0
	}

	for i := 0; i < len(comps)-1; i++ {
		c := comps[i].String()
		if len(c) > defs.NAME_LEN {
			cur.Put()
			return nil, "", defs.ENAMETOOLONG
		}
		next, lerr := Lookup(cur, c)
		cur.Put()
		if lerr != 0 {
			return nil, "", lerr
		}
		if !next.IsDir() {
			next.Put()
			return nil, "", defs.ENOTDIR
		}
		cur = next
	}

	last := comps[len(comps)-1].String()
	if len(last) > defs.NAME_LEN {
		cur.Put()
		return nil, "", defs.ENAMETOOLONG
	}
	return cur, last, 0
}

// OpenNamev resolves path to the vnode it names, creating it via the
// parent's Create op if it is missing and flag carries O_CREAT. If
// the trailing component is empty (path was "/" or equivalent),
// DirNamev's parent result is returned directly.
func OpenNamev(path string, flag int, root, start *Vnode) (*Vnode, defs.Err_t) {
	parent, name, err := DirNamev(path, root, start)
	if err != 0 {
		return nil, err
	}
	if name == "" {
		return parent, 0
	}

	out, lerr := Lookup(parent, name)
	if lerr == defs.ENOENT && flag&defs.O_CREAT != 0 {
		out, lerr = parent.Ops.Create(parent, name)
	}
	parent.Put()
	if lerr != 0 {
		return nil, lerr
	}
	if strings.HasSuffix(path, "/") && !out.IsDir() {
		out.Put()
		return nil, defs.ENOTDIR
	}
	return out, 0
}
