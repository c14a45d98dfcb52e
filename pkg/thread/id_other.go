//go:build !linux

package thread

import "runtime"

// ID returns the id of the calling goroutine. Without gettid the goroutine
// id stands in for the thread id; a goroutine pinned with Pin owns its
// thread exclusively, so the two identify the same execution context.
func ID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine NNN ["
	var id int64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + int64(buf[i]-'0')
	}
	return id
}
