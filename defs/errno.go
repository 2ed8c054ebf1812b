// Package defs holds the type and constant vocabulary shared across the
// kernel: error codes, identifiers, and the handful of flag/mode bits the
// syscall layer and VM/VFS cores agree on.
package defs

import "fmt"

// Err_t is the kernel-wide result type: kernel entry points return
// zero on success or one of the positive errno values below on
// failure; vfssyscall.Negate turns that into the negative syscall
// form, which Ok and Rerror interpret. Every kernel entry point
// returns one of these instead of a Go error so that callers can
// propagate failures with a plain comparison, the way the rest of this
// codebase's ancestry does.
type Err_t int

// Errno values used by this kernel core. Numeric values are internal;
// nothing outside this package interprets them numerically.
const (
	EBADF        Err_t = 1
	EMFILE       Err_t = 2
	EINVAL       Err_t = 3
	ENOENT       Err_t = 4
	ENOTDIR      Err_t = 5
	EISDIR       Err_t = 6
	ENAMETOOLONG Err_t = 7
	EEXIST       Err_t = 8
	ENOTEMPTY    Err_t = 9
	EPERM        Err_t = 10
	ENOMEM       Err_t = 11
	EINTR        Err_t = 12
	ENXIO        Err_t = 13
	ECHILD       Err_t = 14
	EFAULT       Err_t = 15
)

var names = map[Err_t]string{
	EBADF:        "EBADF",
	EMFILE:       "EMFILE",
	EINVAL:       "EINVAL",
	ENOENT:       "ENOENT",
	ENOTDIR:      "ENOTDIR",
	EISDIR:       "EISDIR",
	ENAMETOOLONG: "ENAMETOOLONG",
	EEXIST:       "EEXIST",
	ENOTEMPTY:    "ENOTEMPTY",
	EPERM:        "EPERM",
	ENOMEM:       "ENOMEM",
	EINTR:        "EINTR",
	ENXIO:        "ENXIO",
	ECHILD:       "ECHILD",
	EFAULT:       "EFAULT",
}

// String renders the positive errno magnitude by name, falling back to
// a numeric form for success values and unknown codes.
func (e Err_t) String() string {
	mag := e
	if mag < 0 {
		mag = -mag
	}
	if n, ok := names[mag]; ok {
		return n
	}
	return fmt.Sprintf("errno(%d)", int(e))
}

// Rerror is non-nil whenever e denotes a negative errno, for callers
// crossing into ordinary Go error-handling code (the CLI driver, tests).
func (e Err_t) Rerror() error {
	if e >= 0 {
		return nil
	}
	return fmt.Errorf("%s", e.String())
}

// Ok reports whether e represents success (zero or positive).
func (e Err_t) Ok() bool {
	return e >= 0
}
