//go:build unix

package scanner

import (
	"os"
	"syscall"
)

type inodeKey struct {
	dev uint64
	ino uint64
}

// statKey returns the (device, inode) pair identifying path's underlying
// file, used to detect symlink cycles. The second return is false when the
// platform doesn't expose this information.
func statKey(path string) (inodeKey, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return inodeKey{}, false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, true
}
