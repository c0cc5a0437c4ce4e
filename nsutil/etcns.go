//go:build linux

package nsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultHosts is the loopback preamble every Host's hosts file starts with.
const DefaultHosts = "127.0.0.1\tlocalhost.localdomain\tlocalhost\n" +
	"::1\t\tlocalhost.localdomain\tlocalhost\n"

// etcNetnsDir is where per-namespace /etc overrides live, mirroring
// iproute2/pyroute2's /etc/netns/<name>/ convention.
const etcNetnsDir = "/etc/netns"

// Mount describes a bind mount to perform inside a spawned child, before
// exec, as part of the Popen-in-namespace setup.
type Mount struct {
	Src string
	Dst string
}

// CreateEtcHosts creates /etc/netns/<name>/hosts with the default loopback
// preamble (step 2 of the Host start protocol) and returns the bind-mount
// pair (source, "/etc/hosts") to record against the Host.
func CreateEtcHosts(name string) (Mount, error) {
	dir := filepath.Join(etcNetnsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Mount{}, err
	}
	hosts := filepath.Join(dir, "hosts")
	if err := os.WriteFile(hosts, []byte(DefaultHosts), 0o644); err != nil {
		return Mount{}, err
	}
	return Mount{Src: hosts, Dst: "/etc/hosts"}, nil
}

// MountEtcTmpfs mounts a size-bounded tmpfs over /etc/netns so the hosts
// files a large topology creates never spill onto the root filesystem.
// sizeBytes is rendered as a mount option the same way tmpfs's "size="
// parameter expects; callers typically derive it from a human-readable
// flag via github.com/inhies/go-bytesize.
func MountEtcTmpfs(sizeBytes uint64) error {
	if err := os.MkdirAll(etcNetnsDir, 0o755); err != nil {
		return err
	}
	opts := fmt.Sprintf("size=%d", sizeBytes)
	return unix.Mount("tmpfs", etcNetnsDir, "tmpfs", 0, opts)
}

// RemoveEtcDir removes /etc/netns/<name> entirely (Host stop protocol).
func RemoveEtcDir(name string) error {
	return os.RemoveAll(filepath.Join(etcNetnsDir, name))
}

// WriteHosts overwrites the hosts file at path with the default preamble
// followed by one line per (address, name, aliases) triple.
func WriteHosts(path string, lines []HostsLine) error {
	buf := []byte(DefaultHosts)
	for _, l := range lines {
		buf = append(buf, l.Render()...)
	}
	return os.WriteFile(path, buf, 0o644)
}

// HostsLine is one "address\tname\talias1 alias2 …" entry.
type HostsLine struct {
	Address string
	Name    string
	Aliases []string
}

// Render formats the line as it appears in an /etc/hosts file, including
// the trailing newline.
func (l HostsLine) Render() string {
	aliases := ""
	for i, a := range l.Aliases {
		if i > 0 {
			aliases += " "
		}
		aliases += a
	}
	return l.Address + "\t" + l.Name + "\t" + aliases + "\n"
}
