package defs

// Pid_t identifies a process. 0 is reserved for the idle process, 1 for
// init; ordinary processes rotate through the remainder of the pid
// space as described in spec.md's Process lifecycle.
type Pid_t int

// Tid_t identifies a thread. This kernel core is single-threaded per
// process, so a Tid_t and its owning Pid_t are in 1:1 correspondence,
// but they remain distinct types to keep the scheduler's vocabulary
// independent of the process model.
type Tid_t int

const (
	PidIdle Pid_t = 0
	PidInit Pid_t = 1
)

// Limits referenced throughout the VM/VFS cores (spec.md §6).
const (
	// NFILES is the size of each process's file-descriptor table.
	NFILES = 64
	// NAME_LEN caps a single path component; longer names are
	// ENAMETOOLONG.
	NAME_LEN = 255
	// PROC_MAX_COUNT bounds the pid space.
	PROC_MAX_COUNT = 1 << 16
	// PageSize is the simulated MMU page size in bytes.
	PageSize = 4096
	// UserMemLowPN / UserMemHighPN bound the user virtual address
	// window, expressed in page-frame numbers (spec.md §3/§4.6).
	UserMemLowPN  = 1 << 8     // skip page 0 so vaddr 0 is never valid
	UserMemHighPN = 1 << 28    // generous simulated 1TB-ish window
)

// PN converts a byte address to its page-frame number.
func PN(addr int) int { return addr / PageSize }

// PNToAddr converts a page-frame number back to its base byte address.
func PNToAddr(pn int) int { return pn * PageSize }
