// Package stat mirrors a vnode's stat information, adapted from the
// teacher's stat package. The unsafe-pointer byte view is replaced
// with encoding/binary: this kernel's "pages" are plain []byte slices
// rather than hardware-mapped structs, so there is no direct-map
// address to alias.
package stat

import "encoding/binary"

// Stat_t mirrors a file's stat information (spec.md §6 vnode op
// contract: stat(vn, &statbuf)).
type Stat_t struct {
	Dev    uint
	Ino    uint
	Mode   uint
	Size   uint
	Rdev   uint
	Nlink  uint
	MtimeS uint
	MtimeN uint
}

// Bytes serializes the stat structure for copying to a syscall caller.
func (st *Stat_t) Bytes() []byte {
	b := make([]byte, 8*8)
	fields := []uint64{
		uint64(st.Dev), uint64(st.Ino), uint64(st.Mode), uint64(st.Size),
		uint64(st.Rdev), uint64(st.Nlink), uint64(st.MtimeS), uint64(st.MtimeN),
	}
	for i, f := range fields {
		binary.LittleEndian.PutUint64(b[i*8:], f)
	}
	return b
}
