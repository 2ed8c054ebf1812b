// Command weenixctl boots one instance of the kernel core, runs a
// short fixed demo through init's process context, and prints the
// result. It is a one-shot driver, not a shell: there is no REPL, no
// job control, and no syscall console (spec.md's kshell is
// out of scope for this core). The cobra/pflag wiring here follows
// gcsfuse's cmd package, the example pack's clearest instance of a
// single root command taking flags rather than subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sharduld1908/weenix-go/defs"
	"github.com/sharduld1908/weenix-go/kernel"
	"github.com/sharduld1908/weenix-go/proc"
	"github.com/sharduld1908/weenix-go/sched"
	"github.com/sharduld1908/weenix-go/vfssyscall"
)

var (
	verbose    bool
	demoPath   string
	printDmesg bool
)

var rootCmd = &cobra.Command{
	Use:   "weenixctl",
	Short: "boot the kernel core and run its filesystem/process demo",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		k := kernel.Boot()
		status := kernel.Run(k, func(self *sched.Thread, init *proc.Process) int {
			return runDemo(self, init)
		})

		if printDmesg {
			fmt.Fprint(os.Stdout, string(kernel.Dmesg()))
		}
		fmt.Printf("init exited with status %d\n", status)
		if status != 0 {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&demoPath, "demo-path", "/tmp/hello", "path the demo writes and reads back")
	rootCmd.Flags().BoolVar(&printDmesg, "dmesg", false, "print the kernel log ring buffer before exiting")
}

// runDemo exercises the namespace and process syscalls end to end: it
// creates a directory and a file under it, writes and reads back a
// message, forks a child that exits with a distinct status, and reaps
// it via waitpid. Its return value is init's own exit status.
func runDemo(self *sched.Thread, init *proc.Process) int {
	dir := parentDir(demoPath)
	if dir != "/" {
		if err := vfssyscall.DoMkdir(init, dir); err != 0 && err != defs.EEXIST {
			logrus.WithField("err", err).Error("demo: mkdir failed")
			return int(err)
		}
	}

	fd, err := vfssyscall.DoOpen(init, demoPath, defs.O_CREAT|defs.O_WRONLY)
	if err != 0 {
		logrus.WithField("err", err).Error("demo: open for write failed")
		return int(err)
	}
	msg := []byte("hello from weenix-go\n")
	if _, werr := vfssyscall.DoWrite(init, fd, msg); werr != 0 {
		logrus.WithField("err", werr).Error("demo: write failed")
		return int(werr)
	}
	if cerr := vfssyscall.DoClose(init, fd); cerr != 0 {
		return int(cerr)
	}

	fd, err = vfssyscall.DoOpen(init, demoPath, defs.O_RDONLY)
	if err != 0 {
		logrus.WithField("err", err).Error("demo: open for read failed")
		return int(err)
	}
	buf := make([]byte, 128)
	n, rerr := vfssyscall.DoRead(init, fd, buf)
	if rerr != 0 {
		return int(rerr)
	}
	vfssyscall.DoClose(init, fd)
	fmt.Printf("read back: %s", buf[:n])

	const childStatus = 3
	child, ferr := proc.DoFork(init, "demo-child", func(cself *sched.Thread, c *proc.Process) {
		proc.DoExit(c, cself, childStatus)
	})
	if ferr != 0 {
		logrus.WithField("err", ferr).Error("demo: fork failed")
		return int(ferr)
	}
	_, status, _, werr := proc.DoWaitpid(init, self, child.Pid, 0)
	if werr != 0 {
		return int(werr)
	}
	fmt.Printf("child %d exited with status %d\n", child.Pid, status)
	return 0
}

func parentDir(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "/"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
