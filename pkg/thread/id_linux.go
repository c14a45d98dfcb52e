//go:build linux

package thread

import "golang.org/x/sys/unix"

// ID returns the kernel thread id of the calling thread.
func ID() int64 {
	return int64(unix.Gettid())
}
