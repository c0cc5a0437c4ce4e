//go:build linux

package nsutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/vishvananda/netns"

	"github.com/virtnet-go/virtnet/errs"
)

// netnsDir is where named network namespaces are bind-mounted, matching
// pyroute2's NetNS(name) and iproute2's `ip netns` convention.
const netnsDir = "/var/run/netns"

// CreateNamed creates a new, named network namespace (step 1 of the Host
// start protocol). The calling goroutine's OS thread briefly switches into
// the new namespace to create it and is restored to its original namespace
// before returning — CreateNamed itself never leaves the caller's thread
// namespace changed.
func CreateNamed(name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNs, err := netns.Get()
	if err != nil {
		return &errs.SyscallError{Op: "netns.get", Err: err}
	}
	defer origNs.Close()

	newNs, err := netns.NewNamed(name)
	if err != nil {
		if os.IsExist(err) {
			return errs.EntityUp
		}
		return &errs.SyscallError{Op: "netns.new-named(" + name + ")", Err: err}
	}
	defer newNs.Close()

	if err := netns.Set(origNs); err != nil {
		return &errs.SyscallError{Op: "netns.set(restore)", Err: err}
	}
	return nil
}

// DeleteNamed tears down a named network namespace created by CreateNamed.
func DeleteNamed(name string) error {
	if err := netns.DeleteNamed(name); err != nil && !os.IsNotExist(err) {
		return &errs.SyscallError{Op: "netns.delete-named(" + name + ")", Err: err}
	}
	return nil
}

// Path returns the /var/run/netns/<name> bind-mount path for a named
// namespace, the path Popen's setns step opens directly (mirroring
// pyroute2's `setns(name)` helper rather than going through a Go-level
// netns.NsHandle, since the handle must be reopened inside the freshly
// forked, single-threaded child).
func Path(name string) string {
	return filepath.Join(netnsDir, name)
}

// Exists reports whether a named namespace's bind-mount file is present.
func Exists(name string) bool {
	_, err := os.Stat(Path(name))
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
