//go:build !windows

package cache

import "syscall"

// freeDiskBytes returns the free space on the volume holding path, or
// -1 when it cannot be determined.
func freeDiskBytes(path string) int64 {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return -1
	}
	return int64(fs.Bavail) * int64(fs.Bsize)
}
