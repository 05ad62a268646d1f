//go:build linux || darwin

package cos

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// fsyncParent fsyncs the parent directory of path so a completed rename
// survives a power loss, not just a process crash — the tile-pyramid swap
// of spec.md §4.8 is the one place a crash-recovery scenario (§8 scenario
// 6) is specified in terms of "the final state after restart", which on
// most filesystems requires the directory entry itself to be durable.
func fsyncParent(path string) error {
	dir := filepath.Dir(path)
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Fsync(fd)
}
