// Package progress defines the log/progress sink the Programmer reports
// through (spec.md §4.H, §6 "Progress/Log sink") and a default terminal
// implementation.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"zappem.net/pub/debug/xxd"
)

// downshiftThreshold is the point past which Sink.Progress reports done and
// total scaled down by 8 bits, per spec.md §6: "the programmer downshifts
// units by 8 bits when total > 2^24".
const downshiftThreshold = 1 << 24

// Sink receives log text and progress updates from a running Programmer
// operation. Implementations must be safe to call from a goroutine other
// than the one that started the operation (spec.md §5: "the UI sink is the
// only object whose methods are called from multiple threads").
type Sink interface {
	Log(text string)
	Progress(done, total uint32)
}

// Report calls s.Progress with done/total downshifted by 8 bits whenever
// total exceeds downshiftThreshold, matching spec.md's rule exactly once so
// every caller in the psoc6 package gets it for free.
func Report(s Sink, done, total uint32) {
	if s == nil {
		return
	}
	if total > downshiftThreshold {
		done >>= 8
		total >>= 8
	}
	s.Progress(done, total)
}

// Logf formats and forwards a log line, a no-op if s is nil.
func Logf(s Sink, format string, args ...interface{}) {
	if s == nil {
		return
	}
	s.Log(fmt.Sprintf(format, args...))
}

// DefaultSink writes log lines and a simple progress readout to an
// io.Writer (typically os.Stderr), formatting byte counts with
// go-humanize and, when Verbose, dumping raw payloads with xxd — the same
// "verbose raw report dump" role qftool's `-read -` path gave xxd.
type DefaultSink struct {
	Out     io.Writer
	Verbose bool

	lastPct int
}

// NewDefaultSink returns a DefaultSink writing to os.Stderr.
func NewDefaultSink(verbose bool) *DefaultSink {
	return &DefaultSink{Out: os.Stderr, Verbose: verbose, lastPct: -1}
}

func (s *DefaultSink) Log(text string) {
	fmt.Fprintln(s.Out, text)
}

func (s *DefaultSink) Progress(done, total uint32) {
	if total == 0 {
		return
	}
	pct := int(uint64(done) * 100 / uint64(total))
	if pct == s.lastPct {
		return
	}
	s.lastPct = pct
	fmt.Fprintf(s.Out, "%3d%% (%s / %s)\n", pct,
		humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)))
}

// DumpRaw renders a raw HID report in hex+ASCII via xxd.Print, the same way
// qftool's `-read -` path dumped a section, gated on Verbose so it doesn't
// flood normal runs.
func (s *DefaultSink) DumpRaw(label string, addr int, data []byte) {
	if !s.Verbose {
		return
	}
	s.Log(label + ":")
	xxd.Print(addr, data)
}
