//go:build windows

package cache

// freeDiskBytes is not implemented on Windows; the health check treats
// -1 as "unknown" and skips the free-space threshold.
func freeDiskBytes(path string) int64 {
	return -1
}
