package psoc6

import "sync/atomic"

// CancelToken is the cooperative cancel flag the Programmer polls between
// SROM calls and between rows (spec.md §5).
type CancelToken struct {
	flag int32
}

// Cancel requests cancellation; safe to call from any goroutine.
func (c *CancelToken) Cancel() {
	if c != nil {
		atomic.StoreInt32(&c.flag, 1)
	}
}

// Requested reports whether Cancel has been called.
func (c *CancelToken) Requested() bool {
	return c != nil && atomic.LoadInt32(&c.flag) != 0
}
