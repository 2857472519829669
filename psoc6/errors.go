package psoc6

import "fmt"

// AcquireError reports a failure of the Acquire state machine, returning
// the session to IDLE (spec.md §4.H, §7).
type AcquireError struct {
	Reason string // Timeout | NoSwdResponse | TestModeNotEntered
}

func (e *AcquireError) Error() string { return "psoc6: acquire failed: " + e.Reason }

// ErrAcquireModeUnsupported is returned by Acquire when asked to run
// ACQ_POWER, which spec.md §9 records as recognised in AcquireMode but
// never implemented.
var ErrAcquireModeUnsupported = &AcquireError{Reason: "ModeUnsupported"}

// SromError wraps the 28-bit error id an SROM call reports in its result
// word (spec.md §4.H, §7: "0xF0000000|error_id").
type SromError uint32

func (e SromError) Error() string {
	return fmt.Sprintf("psoc6: SROM error 0x%07x", uint32(e)&0x0FFFFFFF)
}

// VerifyMismatch reports a row-wise verify failure at a single byte
// (spec.md §4.H "Verify algorithm", §7).
type VerifyMismatch struct {
	Addr     uint32
	Expected byte
	Actual   byte
}

func (e *VerifyMismatch) Error() string {
	return fmt.Sprintf("psoc6: verify mismatch at 0x%08x: expected 0x%02x, got 0x%02x",
		e.Addr, e.Expected, e.Actual)
}

// Cancelled is returned when a cooperative cancel request interrupts an
// in-progress operation (spec.md §5).
type Cancelled struct{}

func (e *Cancelled) Error() string { return "psoc6: operation cancelled" }
