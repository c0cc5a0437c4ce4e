//go:build linux

// Package nsutil is the syscall layer: raw unshare/mount/umount2/setns
// bindings for the namespace setup a spawned child performs before exec,
// plus the named-namespace lifecycle helpers a namespaced host needs.
package nsutil

import (
	"golang.org/x/sys/unix"

	"github.com/virtnet-go/virtnet/errs"
)

// makeSyncPipe creates an O_CLOEXEC pipe used to hold the child at the
// start of its pre-exec setup until the parent has finished its own
// bookkeeping (e.g. recording the child's pid).
func makeSyncPipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, &errs.SyscallError{Op: "pipe2", Err: err}
	}
	return p[0], p[1], nil
}

// waitForParent blocks the child until the parent signals it, then closes
// the read end.
func waitForParent(rfd int) error {
	var one [1]byte
	_, err := unix.Read(rfd, one[:])
	_ = unix.Close(rfd)
	return err
}

// signalChild releases the child and closes the write end.
func signalChild(wfd int) error {
	_, err := unix.Write(wfd, []byte{1})
	cerr := unix.Close(wfd)
	if err != nil {
		return err
	}
	return cerr
}

func closePipe(rfd, wfd int) {
	_ = unix.Close(rfd)
	_ = unix.Close(wfd)
}
