package vmsyscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/mmobj"
	"github.com/sharduld1908/weenix-go/proc"
)

type fakeFileMapper struct {
	obj mmobj.Object
	err defs.Err_t
}

func (f fakeFileMapper) Mmap(fd int, prot, flags int) (mmobj.Object, defs.Err_t) {
	return f.obj, f.err
}

func newTestProcess(t *testing.T) *proc.Process {
	t.Helper()
	p, err := proc.Create("vm-test", nil)
	require.Equal(t, defs.Err_t(0), err)
	p.InitBrk(defs.PNToAddr(defs.UserMemLowPN))
	return p
}

func TestDoBrkQueryReturnsCurrent(t *testing.T) {
	p := newTestProcess(t)
	got, err := DoBrk(p, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, p.Brk, got)
}

func TestDoBrkBelowStartIsENOMEM(t *testing.T) {
	p := newTestProcess(t)
	_, err := DoBrk(p, p.StartBrk-defs.PageSize)
	assert.Equal(t, defs.ENOMEM, err)
}

func TestDoBrkGrowsThenShrinksHeap(t *testing.T) {
	p := newTestProcess(t)
	newBrk := p.StartBrk + 3*defs.PageSize

	got, err := DoBrk(p, newBrk)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, newBrk, got)
	assert.Equal(t, newBrk, p.Brk)

	heap := p.Vmmap.Lookup(defs.PN(p.StartBrk))
	require.NotNil(t, heap)
	assert.Equal(t, defs.PN(p.StartBrk)+3, heap.End)

	shrunk := p.StartBrk + defs.PageSize
	got, err = DoBrk(p, shrunk)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, shrunk, got)
}

func TestDoBrkWithinSamePageIsNoop(t *testing.T) {
	p := newTestProcess(t)
	_, err := DoBrk(p, p.StartBrk+3*defs.PageSize+5)
	require.Equal(t, defs.Err_t(0), err)

	got, err := DoBrk(p, p.StartBrk+3*defs.PageSize+10)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, p.StartBrk+3*defs.PageSize+10, got)
}

func TestDoMmapAnonFixed(t *testing.T) {
	p := newTestProcess(t)
	addr := defs.PNToAddr(defs.UserMemLowPN + 100)
	got, err := DoMmap(p, fakeFileMapper{}, addr, defs.PageSize, defs.PROT_READ|defs.PROT_WRITE,
		defs.MAP_PRIVATE|defs.MAP_ANON|defs.MAP_FIXED, -1, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, addr, got)
}

func TestDoMmapRejectsSharedAndPrivateTogether(t *testing.T) {
	p := newTestProcess(t)
	_, err := DoMmap(p, fakeFileMapper{}, 0, defs.PageSize, defs.PROT_READ,
		defs.MAP_SHARED|defs.MAP_PRIVATE|defs.MAP_ANON, -1, 0)
	assert.Equal(t, defs.EINVAL, err)
}

func TestDoMmapFixedRequiresNonZeroAddr(t *testing.T) {
	p := newTestProcess(t)
	_, err := DoMmap(p, fakeFileMapper{}, 0, defs.PageSize, defs.PROT_READ,
		defs.MAP_PRIVATE|defs.MAP_ANON|defs.MAP_FIXED, -1, 0)
	assert.Equal(t, defs.EINVAL, err)
}

func TestDoMmapPropagatesFileMapperError(t *testing.T) {
	p := newTestProcess(t)
	_, err := DoMmap(p, fakeFileMapper{err: defs.EBADF}, 0, defs.PageSize, defs.PROT_READ,
		defs.MAP_PRIVATE, 3, 0)
	assert.Equal(t, defs.EBADF, err)
}

func TestDoMunmapThenRemapSameRange(t *testing.T) {
	p := newTestProcess(t)
	addr := defs.PNToAddr(defs.UserMemLowPN + 50)
	_, err := DoMmap(p, fakeFileMapper{}, addr, defs.PageSize, defs.PROT_READ|defs.PROT_WRITE,
		defs.MAP_PRIVATE|defs.MAP_ANON|defs.MAP_FIXED, -1, 0)
	require.Equal(t, defs.Err_t(0), err)

	err = DoMunmap(p, addr, defs.PageSize)
	require.Equal(t, defs.Err_t(0), err)

	assert.True(t, p.Vmmap.IsRangeEmpty(defs.UserMemLowPN+50, 1))

	got, err := DoMmap(p, fakeFileMapper{}, addr, defs.PageSize, defs.PROT_READ|defs.PROT_WRITE,
		defs.MAP_PRIVATE|defs.MAP_ANON|defs.MAP_FIXED, -1, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, addr, got)
}

func TestDoMunmapRejectsUnalignedAddr(t *testing.T) {
	p := newTestProcess(t)
	err := DoMunmap(p, defs.PageSize+1, defs.PageSize)
	assert.Equal(t, defs.EINVAL, err)
}
