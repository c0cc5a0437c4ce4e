//go:build linux

package nsutil

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/virtnet-go/virtnet/errs"
)

// PopenOpts configures a spawn-in-namespace ("Popen-in-host") call.
type PopenOpts struct {
	// Namespace is the target network namespace name to enter.
	Namespace string
	// Hostname is set via sethostname once the UTS namespace is private.
	Hostname string
	// Mounts are bind-mounted (src -> dst) after the mount namespace is
	// unshared, before exec — this is how a Host's faked /etc files
	// (e.g. the per-namespace hosts file) become visible to the child.
	Mounts []Mount
	// Argv is the program and arguments to exec; Argv[0] must be an
	// absolute or PATH-resolved executable path.
	Argv []string
	// Env is the child's environment.
	Env EnvVars
}

// Process is a running child spawned by Popen.
type Process struct {
	Pid int
}

// Popen forks a child and, before exec, makes it enter the target network
// namespace and privatize its mount/UTS namespaces and faked /etc files.
// This is a real fork followed by raw syscalls in the child, not a
// simulation built on goroutines/threads.
//
// Only async-signal-safe-ish operations (raw syscalls, no heap-heavy Go
// runtime machinery) run between the fork and the exec.
func Popen(opts PopenOpts) (*Process, error) {
	if len(opts.Argv) == 0 {
		return nil, fmt.Errorf("popen: empty argv")
	}

	rfd, wfd, err := makeSyncPipe()
	if err != nil {
		return nil, err
	}

	// A bare clone with only SIGCHLD set is equivalent to fork(2): no new
	// namespaces are created here because we are *joining* an existing
	// network namespace, not creating one (unlike sandbox.NewSandbox's
	// clone3, which creates brand new namespaces for a fresh sandbox).
	pid, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0)
	if errno != 0 {
		closePipe(rfd, wfd)
		return nil, &errs.SyscallError{Op: "clone", Err: errno}
	}

	if pid == 0 {
		// Child: from here on, only raw syscalls until exec.
		childSetupAndExec(rfd, opts)
		// childSetupAndExec never returns; this is unreachable.
		unix.Exit(127)
	}

	// Parent.
	_ = unix.Close(rfd)
	if err := signalChild(wfd); err != nil {
		return nil, &errs.SyscallError{Op: "signal-child", Err: err}
	}
	return &Process{Pid: int(pid)}, nil
}

// childSetupAndExec runs entirely in the forked child. Any failure exits
// non-zero instead of returning; the parent observes it as a failed
// process exit.
func childSetupAndExec(rfd int, opts PopenOpts) {
	if err := waitForParent(rfd); err != nil {
		unix.Exit(1)
	}

	if err := enterNamespace(opts.Namespace); err != nil {
		unix.Exit(1)
	}

	if err := unix.Unshare(unix.CLONE_NEWNS | unix.CLONE_NEWUTS); err != nil {
		unix.Exit(1)
	}

	// Detach mount propagation so the following mounts stay private to
	// this child, instead of leaking back to the host's mount table.
	if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_SLAVE, ""); err != nil {
		unix.Exit(1)
	}

	// Remount sysfs so it reflects the namespace we just entered.
	_ = unix.Unmount("/sys", unix.MNT_DETACH)
	if err := unix.Mount("none", "/sys", "sysfs", 0, ""); err != nil {
		unix.Exit(1)
	}

	if opts.Hostname != "" {
		if err := unix.Sethostname([]byte(opts.Hostname)); err != nil {
			unix.Exit(1)
		}
	}

	for _, m := range opts.Mounts {
		if err := unix.Mount(m.Src, m.Dst, "none", unix.MS_BIND, ""); err != nil {
			unix.Exit(1)
		}
	}

	if err := unix.Exec(opts.Argv[0], opts.Argv, opts.Env.ToStringArray()); err != nil {
		unix.Exit(127)
	}
}

// enterNamespace opens the named namespace's bind-mount file directly
// (rather than going through a netns.NsHandle obtained before the fork)
// because the freshly forked child is single-threaded and must not touch
// Go-runtime-managed file descriptors from the parent's goroutines.
func enterNamespace(name string) error {
	fd, err := unix.Open(Path(name), unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Setns(fd, unix.CLONE_NEWNET)
}

// Wait blocks until the process exits and returns its exit status: a
// normal exit returns its status code, a signal death returns 128+signal.
func (p *Process) Wait() (int, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.Pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, &errs.SyscallError{Op: "wait4", Err: err}
		}
		if wpid == p.Pid {
			break
		}
	}
	if ws.Exited() {
		return ws.ExitStatus(), nil
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return 0, nil
}
